package auth

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"ytdlp-telegram-bot/internal/domain"
	"ytdlp-telegram-bot/internal/users"
)

func newTestService(store users.Store) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(store, NewCodes("s3cret", 0), log)
}

// TestCodesRoundTrip verifies a code verifies for its own user only.
func TestCodesRoundTrip(t *testing.T) {
	codes := NewCodes("s3cret", time.Hour)
	code, err := codes.Issue(42)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := codes.Verify(code, 42); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if err := codes.Verify(code, 43); !errors.Is(err, ErrUserMismatch) {
		t.Fatalf("Verify(other user) = %v, want ErrUserMismatch", err)
	}
}

// TestCodesRejectsForgedAndExpired covers signature and expiry checks.
func TestCodesRejectsForgedAndExpired(t *testing.T) {
	code, err := NewCodes("other", 0).Issue(42)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := NewCodes("s3cret", 0).Verify(code, 42); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("forged code error = %v, want ErrInvalidCode", err)
	}

	codes := NewCodes("s3cret", time.Minute)
	issued := time.Now()
	codes.now = func() time.Time { return issued }
	code, err = codes.Issue(42)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	codes.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if err := codes.Verify(code, 42); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expired code error = %v, want ErrInvalidCode", err)
	}

	if err := codes.Verify("garbage", 42); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("garbage error = %v, want ErrInvalidCode", err)
	}
	if _, err := NewCodes("", 0).Issue(1); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("empty secret error = %v", err)
	}
}

// TestServiceRegistrationFlow walks register, reject and authenticate.
func TestServiceRegistrationFlow(t *testing.T) {
	store := users.NewMemoryStore()
	svc := newTestService(store)
	record := domain.UserRecord{UserID: 7, ChatID: 70, FirstName: "Ada", Auth: true}

	result, code, err := svc.Register(record)
	if err != nil || result != Registered || code == "" {
		t.Fatalf("Register() = %v, %q, %v", result, code, err)
	}
	stored, _ := store.Get("7")
	if stored.Auth {
		t.Fatal("new users must start unauthenticated")
	}
	if result, _, _ := svc.Register(record); result != AlreadyRegistered {
		t.Fatalf("second Register() = %v, want AlreadyRegistered", result)
	}

	if _, err := svc.Authorize(7); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Authorize() before auth = %v", err)
	}
	if result, err := svc.Authenticate(7, "wrong"); err != nil || result != Rejected {
		t.Fatalf("Authenticate(wrong) = %v, %v", result, err)
	}
	if result, err := svc.Authenticate(7, code); err != nil || result != Authenticated {
		t.Fatalf("Authenticate(code) = %v, %v", result, err)
	}
	if result, _ := svc.Authenticate(7, code); result != AlreadyAuthenticated {
		t.Fatalf("repeat Authenticate() = %v", result)
	}
	if got, err := svc.Authorize(7); err != nil || got.ChatID != 70 {
		t.Fatalf("Authorize() = %+v, %v", got, err)
	}
}

// TestServiceUnknownUser checks unregistered senders.
func TestServiceUnknownUser(t *testing.T) {
	svc := newTestService(users.NewMemoryStore())
	if result, _ := svc.Authenticate(99, "x"); result != NotRegistered {
		t.Fatalf("Authenticate() = %v, want NotRegistered", result)
	}
	if _, err := svc.Authorize(99); !errors.Is(err, users.ErrNotRegistered) {
		t.Fatalf("Authorize() = %v, want ErrNotRegistered", err)
	}
}
