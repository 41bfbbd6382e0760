package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/auth"
	"github.com/sakif/circles/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory authStore. A hand-written fake keeps the
// behaviour under test visible in one place.
type fakeUserRepo struct {
	users   map[int64]*model.User
	nextID  int64
	linked  map[string]int64 // email → user id passed to LinkGuestsByEmail
	pending map[string]int   // email → guest rows waiting to be linked

	// set to a non-nil error to simulate a database failure
	linkErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[int64]*model.User),
		nextID:  1,
		linked:  make(map[string]int64),
		pending: make(map[string]int),
	}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return apperror.Conflict("an account with that email or username already exists")
		}
	}
	u.ID = f.nextID
	f.nextID++
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) LinkGuestsByEmail(_ context.Context, email string, userID int64) (int, error) {
	if f.linkErr != nil {
		return 0, f.linkErr
	}
	n := f.pending[email]
	delete(f.pending, email)
	f.linked[email] = userID
	return n, nil
}

func newTestAuthService(t *testing.T, repo *fakeUserRepo) (*AuthService, *auth.TokenService) {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	// Cost 4 is the bcrypt minimum and keeps the tests fast.
	ps := auth.NewPasswordServiceWithCost(4)
	return NewAuthService(repo, ts, ps, quietLogger()), ts
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Email:       "Pat@Example.com",
		DisplayName: "Pat",
		Username:    "pat",
		Password:    "correct horse",
	}
}

// =========================================================================
// Register TESTS
// =========================================================================

func TestRegister_CreatesUserAndSession(t *testing.T) {
	repo := newFakeUserRepo()
	repo.pending["pat@example.com"] = 2
	svc, tokens := newTestAuthService(t, repo)

	result, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result.User.Email != "pat@example.com" {
		t.Errorf("Email = %q, want it lower-cased", result.User.Email)
	}
	if result.User.PasswordHash == "" || result.User.PasswordHash == "correct horse" {
		t.Error("password should be stored hashed")
	}
	if repo.linked["pat@example.com"] != result.User.ID {
		t.Error("guests invited to the address should be linked on sign-up")
	}

	userID, err := tokens.Validate(result.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("token subject = %d, want %d", userID, result.User.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*RegisterInput)
		field string
	}{
		{"missing email", func(in *RegisterInput) { in.Email = "" }, "email"},
		{"bad email", func(in *RegisterInput) { in.Email = "pat" }, "email"},
		{"short password", func(in *RegisterInput) { in.Password = "short" }, "password"},
		{"username with spaces", func(in *RegisterInput) { in.Username = "pat smith" }, "username"},
		{"blank display name", func(in *RegisterInput) { in.DisplayName = "   " }, "display_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(t, newFakeUserRepo())
			in := validRegistration()
			tt.edit(&in)

			_, err := svc.Register(context.Background(), in)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Register() error = %v, want a validation error", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := svc.Register(context.Background(), validRegistration())
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second Register() error = %v, want conflict", err)
	}
}

// =========================================================================
// Login TESTS
// =========================================================================

func TestLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	registered, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := svc.Login(context.Background(), "PAT@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.ID != registered.User.ID || result.Token == "" {
		t.Errorf("Login() = %+v", result)
	}

	for _, tc := range []struct{ email, password string }{
		{"pat@example.com", "wrong password"},
		{"nobody@example.com", "correct horse"},
	} {
		_, err := svc.Login(context.Background(), tc.email, tc.password)
		if !errors.Is(err, apperror.ErrUnauthenticated) {
			t.Errorf("Login(%q) error = %v, want unauthenticated", tc.email, err)
		}
	}

	repo.users[registered.User.ID].Status = model.UserSuspended
	if _, err := svc.Login(context.Background(), "pat@example.com", "correct horse"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("suspended Login() error = %v, want forbidden", err)
	}
}

func TestLogin_LinkFailureIsReported(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	repo.linkErr = errors.New("disk I/O error")
	if _, err := svc.Login(context.Background(), "pat@example.com", "correct horse"); err == nil {
		t.Error("Login() should fail when guests cannot be linked")
	}
}

// =========================================================================
// GetUserByID TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	result, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := svc.GetUserByID(context.Background(), result.User.ID)
	if err != nil || got.Username != "pat" {
		t.Errorf("GetUserByID() = %v, %v", got, err)
	}
	if _, err := svc.GetUserByID(context.Background(), 0); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("GetUserByID(0) error = %v", err)
	}
	if _, err := svc.GetUserByID(context.Background(), 42); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(42) error = %v", err)
	}
}
