package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

type userDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone,omitempty"`
	TaxID     string    `firestore:"cpf,omitempty"`
	Locale    string    `firestore:"locale,omitempty"`
	Role      string    `firestore:"role,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// UserRepository persists customer profiles keyed by Firebase UID.
type UserRepository struct {
	base     *pfirestore.Collection[userDocument]
	provider *pfirestore.Provider
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewCollection[userDocument](provider, usersCollection)
	return &UserRepository{base: base, provider: provider}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user := toDomainUser(doc.ID, doc.Data)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = doc.CreateTime
	}
	return user, nil
}

// Upsert stores the profile, keeping the original creation time when the document already exists.
func (r *UserRepository) Upsert(ctx context.Context, user domain.User) (domain.User, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return domain.User{}, errors.New("user id is required")
	}

	now := time.Now().UTC()
	doc := userDocument{
		Name:      strings.TrimSpace(user.Name),
		Email:     strings.ToLower(strings.TrimSpace(user.Email)),
		Phone:     strings.TrimSpace(user.Phone),
		TaxID:     strings.TrimSpace(user.TaxID),
		Locale:    strings.TrimSpace(user.Locale),
		Role:      strings.ToLower(strings.TrimSpace(user.Role)),
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: now,
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.Ref(ctx, user.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			existing, err := decodeSnapshot[userDocument](snap, "user")
			if err != nil {
				return err
			}
			if !existing.CreatedAt.IsZero() {
				doc.CreatedAt = existing.CreatedAt
			}
		case status.Code(err) == codes.NotFound:
		default:
			return err
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.upsert", err)
	}
	return toDomainUser(user.ID, doc), nil
}

func toDomainUser(id string, doc userDocument) domain.User {
	return domain.User{
		ID:        id,
		Name:      doc.Name,
		Email:     doc.Email,
		Phone:     doc.Phone,
		TaxID:     doc.TaxID,
		Locale:    doc.Locale,
		Role:      doc.Role,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
