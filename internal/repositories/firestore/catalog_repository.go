package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

// TeamRepository persists teams and their operating hours in Firestore.
type TeamRepository struct {
	base *pfirestore.Collection[teamDocument]
}

var _ repositories.TeamRepository = (*TeamRepository)(nil)

// NewTeamRepository constructs a Firestore-backed team repository.
func NewTeamRepository(provider *pfirestore.Provider) (*TeamRepository, error) {
	if provider == nil {
		return nil, errors.New("team repository requires firestore provider")
	}
	return &TeamRepository{base: pfirestore.NewCollection[teamDocument](provider, teamsCollection)}, nil
}

func (r *TeamRepository) Insert(ctx context.Context, team domain.Team) error {
	if r == nil || r.base == nil {
		return errors.New("team repository not initialised")
	}
	ref, err := r.base.Ref(ctx, team.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newTeamDocument(team)); err != nil {
		return pfirestore.WrapError("teams.insert", err)
	}
	return nil
}

func (r *TeamRepository) Update(ctx context.Context, team domain.Team) error {
	if r == nil || r.base == nil {
		return errors.New("team repository not initialised")
	}
	ref, err := r.base.Ref(ctx, team.ID)
	if err != nil {
		return err
	}
	doc := newTeamDocument(team)
	if _, err := ref.Update(ctx, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "active", Value: doc.Active},
		{Path: "maxPartySize", Value: doc.MaxPartySize},
		{Path: "operatingHours", Value: doc.OperatingHours},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}); err != nil {
		return pfirestore.WrapError("teams.update", err)
	}
	return nil
}

func (r *TeamRepository) FindByID(ctx context.Context, teamID string) (domain.Team, error) {
	if r == nil || r.base == nil {
		return domain.Team{}, errors.New("team repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(teamID))
	if err != nil {
		return domain.Team{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns teams ordered by name.
func (r *TeamRepository) List(ctx context.Context, activeOnly bool) ([]domain.Team, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("team repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if activeOnly {
			q = q.Where("active", "==", true)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	teams := make([]domain.Team, 0, len(docs))
	for _, doc := range docs {
		teams = append(teams, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

// ServiceCatalogRepository persists bookable services in Firestore.
type ServiceCatalogRepository struct {
	base *pfirestore.Collection[serviceDocument]
}

var _ repositories.ServiceCatalogRepository = (*ServiceCatalogRepository)(nil)

// NewServiceCatalogRepository constructs a Firestore-backed service catalog repository.
func NewServiceCatalogRepository(provider *pfirestore.Provider) (*ServiceCatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("service catalog repository requires firestore provider")
	}
	return &ServiceCatalogRepository{base: pfirestore.NewCollection[serviceDocument](provider, servicesCollection)}, nil
}

func (r *ServiceCatalogRepository) Insert(ctx context.Context, service domain.Service) error {
	if r == nil || r.base == nil {
		return errors.New("service catalog repository not initialised")
	}
	ref, err := r.base.Ref(ctx, service.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newServiceDocument(service)); err != nil {
		return pfirestore.WrapError("services.insert", err)
	}
	return nil
}

func (r *ServiceCatalogRepository) Update(ctx context.Context, service domain.Service) error {
	if r == nil || r.base == nil {
		return errors.New("service catalog repository not initialised")
	}
	// Set with merge keeps createdAt from the original document.
	doc := newServiceDocument(service)
	err := r.base.Set(ctx, service.ID, doc, firestore.Merge(
		[]string{"name"}, []string{"description"}, []string{"price"}, []string{"maxPeople"},
		[]string{"durationMinutes"}, []string{"active"}, []string{"requiredDocuments"}, []string{"updatedAt"},
	))
	return err
}

func (r *ServiceCatalogRepository) FindByID(ctx context.Context, serviceID string) (domain.Service, error) {
	if r == nil || r.base == nil {
		return domain.Service{}, errors.New("service catalog repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(serviceID))
	if err != nil {
		return domain.Service{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns services ordered by name.
func (r *ServiceCatalogRepository) List(ctx context.Context, activeOnly bool) ([]domain.Service, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("service catalog repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if activeOnly {
			q = q.Where("active", "==", true)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	services := make([]domain.Service, 0, len(docs))
	for _, doc := range docs {
		services = append(services, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}
