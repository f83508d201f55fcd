package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

const (
	maxUserNameLength = 120
	cpfDigits         = 11
)

var (
	// ErrUserInvalidInput signals malformed profile data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the profile does not exist.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserConflict indicates the profile was already registered.
	ErrUserConflict = errors.New("user: already registered")
	// ErrUserPermissionDenied indicates the actor may not perform the change.
	ErrUserPermissionDenied = errors.New("user: permission denied")
)

// RoleAssigner stores the role custom claim on the identity provider.
type RoleAssigner interface {
	SetRole(ctx context.Context, uid, role string) error
}

// EmailDirectory resolves the email stored on the identity provider account.
type EmailDirectory interface {
	LookupEmail(ctx context.Context, uid string) (string, error)
}

// UserServiceDeps bundles collaborators required by the user service.
type UserServiceDeps struct {
	Users repositories.UserRepository
	Roles RoleAssigner
	// Emails fills the address of registrations that carry none, e.g. accounts linked after sign-in.
	Emails EmailDirectory
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users  repositories.UserRepository
	roles  RoleAssigner
	emails EmailDirectory
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

var _ UserService = (*userService)(nil)

// NewUserService constructs the profile service.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	return &userService{
		users:  deps.Users,
		roles:  deps.Roles,
		emails: deps.Emails,
		now:    utcClock(deps.Clock),
		logger: loggerOrNoop(deps.Logger),
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	name, err := normaliseUserName(cmd.Name)
	if err != nil {
		return User{}, err
	}
	email, err := normaliseEmail(s.registrationEmail(ctx, userID, cmd.Email))
	if err != nil {
		return User{}, err
	}
	phone, err := normalisePhone(cmd.Phone)
	if err != nil {
		return User{}, err
	}
	taxID, err := normaliseTaxID(cmd.TaxID)
	if err != nil {
		return User{}, err
	}

	if _, err := s.users.FindByID(ctx, userID); err == nil {
		return User{}, fmt.Errorf("%w: %s", ErrUserConflict, userID)
	} else if !isNotFound(err) {
		return User{}, mapRepositoryError(err, nil, nil)
	}

	now := s.now()
	user, err := s.users.Upsert(ctx, User{
		ID:        userID,
		Name:      name,
		Email:     email,
		Phone:     phone,
		TaxID:     taxID,
		Locale:    notifications.MatchLocale(cmd.Locale).String(),
		Role:      auth.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return User{}, mapRepositoryError(err, nil, ErrUserConflict)
	}
	s.logger(ctx, "user.registered", map[string]any{"userId": userID})
	return user, nil
}

func (s *userService) registrationEmail(ctx context.Context, userID, given string) string {
	if strings.TrimSpace(given) != "" || s.emails == nil {
		return given
	}
	email, err := s.emails.LookupEmail(ctx, userID)
	if err != nil {
		s.logger(ctx, "user.email_lookup_failed", map[string]any{"userId": userID, "error": err.Error()})
		return given
	}
	return email
}

func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, mapRepositoryError(err, ErrUserNotFound, nil)
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error) {
	user, err := s.GetProfile(ctx, cmd.UserID)
	if err != nil {
		return User{}, err
	}
	if cmd.Name != nil {
		if user.Name, err = normaliseUserName(*cmd.Name); err != nil {
			return User{}, err
		}
	}
	if cmd.Phone != nil {
		if user.Phone, err = normalisePhone(*cmd.Phone); err != nil {
			return User{}, err
		}
	}
	if cmd.TaxID != nil {
		if user.TaxID, err = normaliseTaxID(*cmd.TaxID); err != nil {
			return User{}, err
		}
	}
	if cmd.Locale != nil {
		user.Locale = notifications.MatchLocale(*cmd.Locale).String()
	}
	user.UpdatedAt = s.now()
	updated, err := s.users.Upsert(ctx, user)
	if err != nil {
		return User{}, mapRepositoryError(err, ErrUserNotFound, nil)
	}
	return updated, nil
}

// AssignRole is admin only. The claim is written first so a failed profile write leaves the
// identity provider authoritative.
func (s *userService) AssignRole(ctx context.Context, cmd AssignRoleCommand) (User, error) {
	if cmd.Actor == nil || !cmd.Actor.HasRole(auth.RoleAdmin) {
		return User{}, ErrUserPermissionDenied
	}
	if !auth.ValidRole(cmd.Role) {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, cmd.Role)
	}
	role := auth.NormaliseRole(cmd.Role)
	if strings.TrimSpace(cmd.UserID) == actorID(cmd.Actor) && role != auth.RoleAdmin {
		return User{}, fmt.Errorf("%w: admins cannot demote themselves", ErrUserInvalidInput)
	}
	user, err := s.GetProfile(ctx, cmd.UserID)
	if err != nil {
		return User{}, err
	}
	if s.roles != nil {
		if err := s.roles.SetRole(ctx, user.ID, role); err != nil {
			return User{}, fmt.Errorf("user: set role claim: %w", err)
		}
	}
	previous := user.Role
	user.Role = role
	user.UpdatedAt = s.now()
	updated, err := s.users.Upsert(ctx, user)
	if err != nil {
		return User{}, mapRepositoryError(err, ErrUserNotFound, nil)
	}
	s.logger(ctx, "user.role.changed", map[string]any{
		"userId":   user.ID,
		"actorId":  actorID(cmd.Actor),
		"previous": previous,
		"role":     role,
	})
	return updated, nil
}

func normaliseUserName(value string) (string, error) {
	name := strings.Join(strings.Fields(value), " ")
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	if len([]rune(name)) > maxUserNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrUserInvalidInput, maxUserNameLength)
	}
	return name, nil
}

func normaliseEmail(value string) (string, error) {
	value = strings.TrimSpace(value)
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", fmt.Errorf("%w: invalid email", ErrUserInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}

func normalisePhone(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	formatted := notifications.FormatPhone(value)
	// +55 plus area code plus 8 or 9 digit number.
	if n := len(formatted) - 1; n < 12 || n > 13 {
		return "", fmt.Errorf("%w: invalid phone number", ErrUserInvalidInput)
	}
	return formatted, nil
}

// normaliseTaxID keeps the CPF digits and checks its two verifier digits.
func normaliseTaxID(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	digits := make([]int, 0, cpfDigits)
	for _, r := range value {
		switch {
		case unicode.IsDigit(r):
			digits = append(digits, int(r-'0'))
		case r == '.' || r == '-' || r == ' ':
		default:
			return "", fmt.Errorf("%w: invalid CPF", ErrUserInvalidInput)
		}
	}
	if len(digits) != cpfDigits || allSame(digits) {
		return "", fmt.Errorf("%w: invalid CPF", ErrUserInvalidInput)
	}
	for _, pos := range []int{9, 10} {
		sum := 0
		for i := 0; i < pos; i++ {
			sum += digits[i] * (pos + 1 - i)
		}
		check := (sum * 10) % 11
		if check == 10 {
			check = 0
		}
		if check != digits[pos] {
			return "", fmt.Errorf("%w: invalid CPF", ErrUserInvalidInput)
		}
	}
	var b strings.Builder
	for _, d := range digits {
		b.WriteByte(byte('0' + d))
	}
	return b.String(), nil
}

func allSame(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}
