package goMembership

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goMembership/password"
)

func TestChangePasswordKeepsSalt(t *testing.T) {
	engine, clock, st := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "alice", "alice@x.com")
	before := loadAccount(t, engine, st, "alice")

	clock.Advance(time.Minute)
	if err := engine.ChangePassword(ctx, "alice", testPassword, "brand-new-pw#2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	after := loadAccount(t, engine, st, "alice")
	if after.PasswordSalt != before.PasswordSalt {
		t.Fatal("salt must never be regenerated")
	}
	if after.PasswordHash == before.PasswordHash {
		t.Fatal("expected a new hash")
	}
	if !after.LastPasswordChangedDate.Equal(clock.Now()) {
		t.Fatalf("expected change date %v, got %v", clock.Now(), after.LastPasswordChangedDate)
	}

	if ok, _ := engine.ValidateUser(ctx, "alice", "brand-new-pw#2"); !ok {
		t.Fatal("new password must validate")
	}
	if ok, _ := engine.ValidateUser(ctx, "alice", testPassword); ok {
		t.Fatal("old password must no longer validate")
	}
}

func TestChangePasswordWrongOldPasswordCountsFailure(t *testing.T) {
	engine, _, st := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "bob", "bob@x.com")

	err := engine.ChangePassword(ctx, "bob", "wrong", "brand-new-pw#2")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := loadAccount(t, engine, st, "bob").FailedPasswordAttempts; got != 1 {
		t.Fatalf("expected failure counted, got %d", got)
	}
}

func TestChangePasswordPolicyCheckedFirst(t *testing.T) {
	engine, _, st := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "carol", "carol@x.com")

	err := engine.ChangePassword(ctx, "carol", "wrong", "weak")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if got := loadAccount(t, engine, st, "carol").FailedPasswordAttempts; got != 0 {
		t.Fatalf("policy failure must not touch the account, got %d failures", got)
	}
}

func TestChangePasswordQuestionAndAnswerThenReset(t *testing.T) {
	engine, _, st := newTestEngine(t, func(cfg *Config) {
		cfg.Membership.RequiresQuestionAndAnswer = true
	})
	ctx := context.Background()
	mustCreateUser(t, engine, "dan", "dan@x.com")

	if err := engine.ChangePasswordQuestionAndAnswer(ctx, "dan", testPassword, "City?", "Paris"); err != nil {
		t.Fatalf("ChangePasswordQuestionAndAnswer: %v", err)
	}
	acct := loadAccount(t, engine, st, "dan")
	if acct.PasswordQuestion != "City?" || acct.PasswordAnswerHash == "Paris" {
		t.Fatalf("unexpected question state: %q %q", acct.PasswordQuestion, acct.PasswordAnswerHash)
	}

	generated, err := engine.ResetPassword(ctx, "dan", "  pARIS ")
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if utf8.RuneCountInString(generated) < 14 {
		t.Fatalf("expected at least 14 characters, got %q", generated)
	}
	if password.CountNonAlphanumeric(generated) < 2 {
		t.Fatalf("expected at least 2 specials, got %q", generated)
	}
	if ok, _ := engine.ValidateUser(ctx, "dan", generated); !ok {
		t.Fatal("generated password must validate")
	}
	if loadAccount(t, engine, st, "dan").PasswordSalt != acct.PasswordSalt {
		t.Fatal("salt must never be regenerated")
	}
}

func TestResetPasswordWrongAnswer(t *testing.T) {
	engine, _, st := newTestEngine(t, func(cfg *Config) {
		cfg.Membership.RequiresQuestionAndAnswer = true
		cfg.Membership.MaxInvalidPasswordAttempts = 2
	})
	ctx := context.Background()
	mustCreateUser(t, engine, "erin", "erin@x.com")

	for i := 0; i < 2; i++ {
		_, err := engine.ResetPassword(ctx, "erin", "green")
		if !errors.Is(err, ErrWrongPasswordAnswer) {
			t.Fatalf("attempt %d: expected ErrWrongPasswordAnswer, got %v", i+1, err)
		}
	}

	acct := loadAccount(t, engine, st, "erin")
	if acct.FailedPasswordAnswerAttempts != 2 || acct.LastFailedPasswordAnswerAttempt.IsZero() {
		t.Fatalf("expected answer failures recorded, got %+v", acct)
	}
	if !acct.IsLockedOut {
		t.Fatal("wrong answers must count toward lockout")
	}

	_, err := engine.ResetPassword(ctx, "erin", "Blue")
	if !errors.Is(err, ErrAccountLocked) || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected locked (user not found class), got %v", err)
	}
}

func TestResetPasswordLockedAccountFails(t *testing.T) {
	engine, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Membership.MaxInvalidPasswordAttempts = 1
	})
	ctx := context.Background()
	mustCreateUser(t, engine, "frank", "frank@x.com")

	_, _ = engine.ValidateUser(ctx, "frank", "wrong")

	_, err := engine.ResetPassword(ctx, "frank", "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound class, got %v", err)
	}
}

func TestResetPasswordWithoutQuestionRequirement(t *testing.T) {
	engine, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Membership.MinRequiredPasswordLength = 20
		cfg.Membership.MinRequiredNonAlphanumericCharacters = 4
	})
	ctx := context.Background()

	_, status, err := engine.CreateUser(ctx, CreateUserRequest{
		Username:   "gina",
		Password:   "a-long-password-with-!!",
		IsApproved: true,
	})
	if err != nil || status != StatusSuccess {
		t.Fatalf("CreateUser: %s %v", status, err)
	}

	generated, err := engine.ResetPassword(ctx, "gina", "")
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if utf8.RuneCountInString(generated) < 20 || password.CountNonAlphanumeric(generated) < 4 {
		t.Fatalf("generated password does not honor the policy: %q", generated)
	}
}

func TestResetPasswordDisabledAndUnknown(t *testing.T) {
	engine, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Membership.EnablePasswordReset = false
	})
	if _, err := engine.ResetPassword(context.Background(), "anyone", "x"); !errors.Is(err, ErrPasswordResetDisabled) {
		t.Fatalf("expected ErrPasswordResetDisabled, got %v", err)
	}

	enabled, _, _ := newTestEngine(t, nil)
	if _, err := enabled.ResetPassword(context.Background(), "ghost", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetPasswordUnsupported(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	if _, err := engine.GetPassword(context.Background(), "alice", "Blue"); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}
