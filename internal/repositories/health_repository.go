package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck is one readiness probe, e.g. a Firestore round trip or a Secret Manager read.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// DependencyHealthOption configures NewDependencyHealthRepository.
type DependencyHealthOption func(*probeSet)

// WithDependencyTimeout sets the timeout for checks that do not declare one.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(p *probeSet) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithDependencyClock overrides time.Now.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(p *probeSet) {
		if clock != nil {
			p.now = clock
		}
	}
}

type probeSet struct {
	checks  []DependencyCheck
	timeout time.Duration
	now     func() time.Time
}

// NewDependencyHealthRepository runs every check concurrently on each Collect. Checks must be
// named and unique.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	seen := make(map[string]struct{}, len(checks))
	for _, c := range checks {
		name := strings.TrimSpace(c.Name)
		if name == "" || c.Check == nil {
			return nil, fmt.Errorf("health repository: check %q needs a name and a function", c.Name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("health repository: duplicate check %q", name)
		}
		seen[name] = struct{}{}
	}

	p := &probeSet{
		checks:  append([]DependencyCheck(nil), checks...),
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *probeSet) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	results := make([]domain.SystemHealthCheck, len(p.checks))

	// Probes never fail the group; each records its own outcome.
	var g errgroup.Group
	for i, c := range p.checks {
		g.Go(func() error {
			results[i] = p.probe(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      make(map[string]domain.SystemHealthCheck, len(results)),
		GeneratedAt: p.now(),
	}
	for i, res := range results {
		report.Checks[p.checks[i].Name] = res
		report.Status = worse(report.Status, res.Status)
	}
	return report, nil
}

func (p *probeSet) probe(ctx context.Context, c DependencyCheck) domain.SystemHealthCheck {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.now()
	err := c.Check(checkCtx)
	if err == nil {
		// A probe that ignores its context still counts as failed once the deadline passes.
		err = checkCtx.Err()
	}
	end := p.now()

	res := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		res.Status, res.Detail, res.Error = domain.HealthStatusError, "timeout", err.Error()
	case errors.Is(err, context.Canceled):
		res.Status, res.Detail, res.Error = domain.HealthStatusError, "cancelled", err.Error()
	default:
		res.Status, res.Detail, res.Error = domain.HealthStatusDegraded, "unhealthy", err.Error()
	}
	return res
}

func worse(a, b string) string {
	rank := func(s string) int {
		switch s {
		case domain.HealthStatusError:
			return 2
		case domain.HealthStatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
