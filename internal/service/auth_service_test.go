package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/model"
	"golang.org/x/crypto/bcrypt"
)

func newAuth(t *testing.T) (*AuthService, *memDB) {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	db := newMemDB()
	return NewAuthService(cfg, memUsers{db}, zerolog.Nop()), db
}

func registerRequest() model.RegisterRequest {
	return model.RegisterRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com",
		Password:  "s3cret-pass",
		Role:      string(model.RoleTeacher),
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuth(t)

	reg, err := auth.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.User.Email != "ada@example.com" || reg.User.Role != model.RoleTeacher || !reg.User.IsActive {
		t.Fatalf("user = %+v", reg.User)
	}
	if reg.User.PasswordHash == "s3cret-pass" {
		t.Fatal("password stored in plain text")
	}

	claims, err := auth.ValidateToken(reg.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != reg.User.ID || claims.Role != model.RoleTeacher || claims.Email != "ada@example.com" {
		t.Fatalf("claims = %+v", claims)
	}
	if a := claims.Actor(); !a.CanAuthor() || a.IsAdmin() {
		t.Fatalf("actor = %+v", a)
	}

	login, err := auth.Login(ctx, model.LoginRequest{Email: "ada@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Fatalf("login user = %d, want %d", login.User.ID, reg.User.ID)
	}

	me, err := auth.Me(ctx, reg.User.ID)
	if err != nil || me.Email != "ada@example.com" {
		t.Fatalf("Me() = %+v, %v", me, err)
	}
	if _, err := auth.Me(ctx, 999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Me() err = %v, want ErrUserNotFound", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuth(t)

	if _, err := auth.Register(ctx, registerRequest()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := auth.Register(ctx, registerRequest()); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	auth, db := newAuth(t)
	reg, err := auth.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name string
		req  model.LoginRequest
		want error
	}{
		{"unknown email", model.LoginRequest{Email: "nobody@example.com", Password: "x"}, ErrInvalidCredentials},
		{"wrong password", model.LoginRequest{Email: "ada@example.com", Password: "nope"}, ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.Login(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	db.mu.Lock()
	db.users[reg.User.ID].IsActive = false
	db.mu.Unlock()
	if _, err := auth.Login(ctx, model.LoginRequest{Email: "ada@example.com", Password: "s3cret-pass"}); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("err = %v, want ErrAccountDisabled", err)
	}
}

func TestValidateToken(t *testing.T) {
	auth, _ := newAuth(t)
	u := &model.User{ID: 7, Email: "t@example.com", Role: model.RoleStudent}

	t.Run("expired", func(t *testing.T) {
		auth.cfg.JWTExpiry = -time.Minute
		defer func() { auth.cfg.JWTExpiry = time.Hour }()

		token, _, err := auth.GenerateToken(u)
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
		if _, err := auth.ValidateToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
			t.Fatalf("err = %v, want jwt.ErrTokenExpired", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := auth.GenerateToken(u)
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
		other := NewAuthService(&config.Config{JWTSecret: "other"}, nil, zerolog.Nop())
		if _, err := other.ValidateToken(token); err == nil {
			t.Fatal("token signed with another secret was accepted")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := auth.ValidateToken("not.a.token"); err == nil {
			t.Fatal("garbage token was accepted")
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuth(t)
	reg, err := auth.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	id := reg.User.ID

	wrong := model.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "brand-new"}
	if err := auth.ChangePassword(ctx, id, wrong); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password err = %v, want ErrInvalidCredentials", err)
	}
	if err := auth.ChangePassword(ctx, 999, wrong); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user err = %v, want ErrUserNotFound", err)
	}

	req := model.ChangePasswordRequest{CurrentPassword: "s3cret-pass", NewPassword: "brand-new"}
	if err := auth.ChangePassword(ctx, id, req); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := auth.Login(ctx, model.LoginRequest{Email: "ada@example.com", Password: "s3cret-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password login err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := auth.Login(ctx, model.LoginRequest{Email: "ada@example.com", Password: "brand-new"}); err != nil {
		t.Fatalf("new password login error = %v", err)
	}
}

func TestSetUserActive(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuth(t)
	reg, err := auth.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	id := reg.User.ID
	login := model.LoginRequest{Email: "ada@example.com", Password: "s3cret-pass"}

	u, err := auth.SetUserActive(ctx, admin, id, false)
	if err != nil {
		t.Fatalf("SetUserActive(false) error = %v", err)
	}
	if u.IsActive {
		t.Fatal("user still active")
	}
	if _, err := auth.Login(ctx, login); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("login err = %v, want ErrAccountDisabled", err)
	}

	if _, err := auth.SetUserActive(ctx, admin, id, true); err != nil {
		t.Fatalf("SetUserActive(true) error = %v", err)
	}
	if _, err := auth.Login(ctx, login); err != nil {
		t.Fatalf("login after reactivation error = %v", err)
	}

	if _, err := auth.SetUserActive(ctx, Actor{UserID: id, Role: model.RoleAdmin}, id, false); !errors.Is(err, ErrCannotDeactivateSelf) {
		t.Fatalf("self deactivation err = %v, want ErrCannotDeactivateSelf", err)
	}
	if _, err := auth.SetUserActive(ctx, admin, 999, false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user err = %v, want ErrUserNotFound", err)
	}

	users, err := auth.ListUsers(ctx)
	if err != nil || len(users) != 1 || users[0].ID != id {
		t.Fatalf("ListUsers() = %+v, %v", users, err)
	}
	if got, err := auth.GetUser(ctx, id); err != nil || got.Email != "ada@example.com" {
		t.Fatalf("GetUser() = %+v, %v", got, err)
	}
}
