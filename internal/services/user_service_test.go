package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
)

type stubRoleAssigner struct {
	calls []string
	err   error
}

func (s *stubRoleAssigner) SetRole(_ context.Context, uid, role string) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, uid+"="+role)
	return nil
}

func newUserFixture(t *testing.T) (*memStore, *stubRoleAssigner, UserService) {
	t.Helper()
	store := newMemStore()
	roles := &stubRoleAssigner{}
	svc, err := NewUserService(UserServiceDeps{
		Users: store.Users(),
		Roles: roles,
		Clock: fixedClock(depositNow),
	})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return store, roles, svc
}

func TestRegisterNormalisesProfile(t *testing.T) {
	_, _, svc := newUserFixture(t)

	user, err := svc.Register(context.Background(), RegisterUserCommand{
		UserID: "user-1",
		Name:   "  Ana   Souza ",
		Email:  "Ana@Example.com",
		Phone:  "(48) 99999-0000",
		TaxID:  "529.982.247-25",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Name != "Ana Souza" || user.Email != "ana@example.com" {
		t.Fatalf("unexpected identity fields %+v", user)
	}
	if user.Phone != "+5548999990000" || user.TaxID != "52998224725" {
		t.Fatalf("unexpected contact fields %+v", user)
	}
	if user.Role != auth.RoleUser || user.Locale != notifications.DefaultLocale.String() {
		t.Fatalf("unexpected defaults %+v", user)
	}
}

type stubEmailDirectory struct {
	email string
	err   error
}

func (s stubEmailDirectory) LookupEmail(context.Context, string) (string, error) {
	return s.email, s.err
}

func TestRegisterFillsEmailFromDirectory(t *testing.T) {
	tests := []struct {
		name      string
		given     string
		directory stubEmailDirectory
		want      string
		wantErr   error
	}{
		{"missing email looked up", "", stubEmailDirectory{email: "Ana@Example.com"}, "ana@example.com", nil},
		{"given email wins", "ana.souza@example.com", stubEmailDirectory{email: "other@example.com"}, "ana.souza@example.com", nil},
		{"lookup failure still requires an email", "", stubEmailDirectory{err: errors.New("firebase down")}, "", ErrUserInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			svc, err := NewUserService(UserServiceDeps{
				Users:  store.Users(),
				Emails: tc.directory,
				Clock:  fixedClock(depositNow),
			})
			if err != nil {
				t.Fatalf("NewUserService: %v", err)
			}
			user, err := svc.Register(context.Background(), RegisterUserCommand{UserID: "user-1", Name: "Ana", Email: tc.given})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			if user.Email != tc.want {
				t.Fatalf("expected email %q, got %q", tc.want, user.Email)
			}
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	valid := RegisterUserCommand{UserID: "user-1", Name: "Ana", Email: "ana@example.com"}
	edit := func(f func(*RegisterUserCommand)) RegisterUserCommand {
		cmd := valid
		f(&cmd)
		return cmd
	}
	cases := []struct {
		name string
		cmd  RegisterUserCommand
	}{
		{"no id", edit(func(c *RegisterUserCommand) { c.UserID = "" })},
		{"no name", edit(func(c *RegisterUserCommand) { c.Name = "  " })},
		{"bad email", edit(func(c *RegisterUserCommand) { c.Email = "ana at example" })},
		{"display name email", edit(func(c *RegisterUserCommand) { c.Email = "Ana <ana@example.com>" })},
		{"short phone", edit(func(c *RegisterUserCommand) { c.Phone = "9999" })},
		{"bad cpf digit", edit(func(c *RegisterUserCommand) { c.TaxID = "529.982.247-24" })},
		{"repeated cpf", edit(func(c *RegisterUserCommand) { c.TaxID = "111.111.111-11" })},
		{"cpf letters", edit(func(c *RegisterUserCommand) { c.TaxID = "5299822472A" })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, svc := newUserFixture(t)
			if _, err := svc.Register(context.Background(), tc.cmd); !errors.Is(err, ErrUserInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestRegisterTwiceConflicts(t *testing.T) {
	_, _, svc := newUserFixture(t)
	cmd := RegisterUserCommand{UserID: "user-1", Name: "Ana", Email: "ana@example.com"}
	ctx := context.Background()

	if _, err := svc.Register(ctx, cmd); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, cmd); !errors.Is(err, ErrUserConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateProfilePatchesOnlyGivenFields(t *testing.T) {
	store, _, svc := newUserFixture(t)
	store.putUser(domain.User{ID: "user-1", Name: "Ana", Email: "ana@example.com", Phone: "+5548999990000", Locale: "pt-BR", Role: auth.RoleUser})
	name := "Ana Maria"
	locale := "en-US"

	updated, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "user-1", Name: &name, Locale: &locale})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Name != "Ana Maria" || updated.Phone != "+5548999990000" || updated.Email != "ana@example.com" {
		t.Fatalf("unexpected profile %+v", updated)
	}
	if notifications.MatchLocale(updated.Locale) == notifications.DefaultLocale {
		t.Fatalf("expected english locale, got %q", updated.Locale)
	}
	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "user-404", Name: &name}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAssignRole(t *testing.T) {
	store, roles, svc := newUserFixture(t)
	store.putUser(domain.User{ID: "user-1", Name: "Ana", Email: "ana@example.com", Role: auth.RoleUser})
	store.putUser(domain.User{ID: "op-1", Name: "Op", Email: "op@example.com", Role: auth.RoleAdmin})
	ctx := context.Background()

	updated, err := svc.AssignRole(ctx, AssignRoleCommand{Actor: admin("op-1"), UserID: "user-1", Role: "employee"})
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if updated.Role != auth.RoleStaff {
		t.Fatalf("expected legacy role folded to staff, got %q", updated.Role)
	}
	if len(roles.calls) != 1 || roles.calls[0] != "user-1=staff" {
		t.Fatalf("expected claim to be set, got %v", roles.calls)
	}

	cases := []struct {
		name string
		cmd  AssignRoleCommand
		want error
	}{
		{"staff actor", AssignRoleCommand{Actor: staff("op-2"), UserID: "user-1", Role: "admin"}, ErrUserPermissionDenied},
		{"no actor", AssignRoleCommand{UserID: "user-1", Role: "admin"}, ErrUserPermissionDenied},
		{"unknown role", AssignRoleCommand{Actor: admin("op-1"), UserID: "user-1", Role: "owner"}, ErrUserInvalidInput},
		{"self demotion", AssignRoleCommand{Actor: admin("op-1"), UserID: "op-1", Role: "user"}, ErrUserInvalidInput},
		{"unknown user", AssignRoleCommand{Actor: admin("op-1"), UserID: "user-404", Role: "staff"}, ErrUserNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AssignRole(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAssignRoleClaimFailureKeepsProfile(t *testing.T) {
	store, roles, svc := newUserFixture(t)
	store.putUser(domain.User{ID: "user-1", Name: "Ana", Email: "ana@example.com", Role: auth.RoleUser})
	roles.err = errBoom

	if _, err := svc.AssignRole(context.Background(), AssignRoleCommand{Actor: admin("op-1"), UserID: "user-1", Role: "staff"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected claim error, got %v", err)
	}
	user, _ := store.Users().FindByID(context.Background(), "user-1")
	if user.Role != auth.RoleUser {
		t.Fatalf("profile must be unchanged, got %q", user.Role)
	}
}
