package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

const (
	maxServiceNameLength        = 160
	maxServiceDescriptionLength = 4000
	maxRequiredDocuments        = 20
)

var (
	// ErrCatalogInvalidInput signals malformed catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the service does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a service with the same id already exists.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles collaborators required by the catalog service.
type CatalogServiceDeps struct {
	Services    repositories.ServiceCatalogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	services repositories.ServiceCatalogRepository
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	policy   *bluemonday.Policy
}

var _ ServiceCatalog = (*catalogService)(nil)

// NewCatalogService constructs the service catalog.
func NewCatalogService(deps CatalogServiceDeps) (ServiceCatalog, error) {
	if deps.Services == nil {
		return nil, errors.New("catalog service: service repository is required")
	}
	return &catalogService{
		services: deps.Services,
		now:      utcClock(deps.Clock),
		newID:    idGeneratorOrDefault(deps.IDGenerator),
		logger:   loggerOrNoop(deps.Logger),
		policy:   bluemonday.StrictPolicy(),
	}, nil
}

func (s *catalogService) CreateService(ctx context.Context, cmd UpsertServiceCommand) (TourService, error) {
	svc, err := s.buildService(cmd)
	if err != nil {
		return TourService{}, err
	}
	svc.ID = strings.TrimSpace(cmd.ServiceID)
	if svc.ID == "" {
		svc.ID = s.newID()
	}
	now := s.now()
	svc.CreatedAt = now
	svc.UpdatedAt = now
	if err := s.services.Insert(ctx, svc); err != nil {
		return TourService{}, mapRepositoryError(err, ErrCatalogNotFound, ErrCatalogConflict)
	}
	s.logger(ctx, "catalog.service.created", map[string]any{"serviceId": svc.ID, "price": svc.Price})
	return svc, nil
}

func (s *catalogService) UpdateService(ctx context.Context, cmd UpsertServiceCommand) (TourService, error) {
	serviceID := strings.TrimSpace(cmd.ServiceID)
	if serviceID == "" {
		return TourService{}, fmt.Errorf("%w: service id is required", ErrCatalogInvalidInput)
	}
	current, err := s.services.FindByID(ctx, serviceID)
	if err != nil {
		return TourService{}, mapRepositoryError(err, ErrCatalogNotFound, nil)
	}
	svc, err := s.buildService(cmd)
	if err != nil {
		return TourService{}, err
	}
	svc.ID = serviceID
	svc.CreatedAt = current.CreatedAt
	svc.UpdatedAt = s.now()
	if err := s.services.Update(ctx, svc); err != nil {
		return TourService{}, mapRepositoryError(err, ErrCatalogNotFound, ErrCatalogConflict)
	}
	s.logger(ctx, "catalog.service.updated", map[string]any{"serviceId": svc.ID, "active": svc.Active})
	return svc, nil
}

func (s *catalogService) GetService(ctx context.Context, serviceID string) (TourService, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return TourService{}, fmt.Errorf("%w: service id is required", ErrCatalogInvalidInput)
	}
	svc, err := s.services.FindByID(ctx, serviceID)
	if err != nil {
		return TourService{}, mapRepositoryError(err, ErrCatalogNotFound, nil)
	}
	return svc, nil
}

func (s *catalogService) ListServices(ctx context.Context, activeOnly bool) ([]TourService, error) {
	list, err := s.services.List(ctx, activeOnly)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *catalogService) buildService(cmd UpsertServiceCommand) (domain.Service, error) {
	name := strings.TrimSpace(s.policy.Sanitize(cmd.Name))
	if name == "" {
		return domain.Service{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if len([]rune(name)) > maxServiceNameLength {
		return domain.Service{}, fmt.Errorf("%w: name must be at most %d characters", ErrCatalogInvalidInput, maxServiceNameLength)
	}
	description := strings.TrimSpace(s.policy.Sanitize(cmd.Description))
	if len([]rune(description)) > maxServiceDescriptionLength {
		return domain.Service{}, fmt.Errorf("%w: description must be at most %d characters", ErrCatalogInvalidInput, maxServiceDescriptionLength)
	}
	if cmd.Price <= 0 {
		return domain.Service{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.MaxPeople < 0 || cmd.DurationMinutes < 0 {
		return domain.Service{}, fmt.Errorf("%w: capacity and duration must not be negative", ErrCatalogInvalidInput)
	}
	if len(cmd.RequiredDocuments) > maxRequiredDocuments {
		return domain.Service{}, fmt.Errorf("%w: at most %d required documents", ErrCatalogInvalidInput, maxRequiredDocuments)
	}
	docs := make([]string, 0, len(cmd.RequiredDocuments))
	for _, doc := range cmd.RequiredDocuments {
		if doc = strings.TrimSpace(s.policy.Sanitize(doc)); doc != "" {
			docs = append(docs, doc)
		}
	}
	return domain.Service{
		Name:              name,
		Description:       description,
		Price:             cmd.Price,
		MaxPeople:         cmd.MaxPeople,
		DurationMinutes:   cmd.DurationMinutes,
		Active:            cmd.Active,
		RequiredDocuments: docs,
	}, nil
}
