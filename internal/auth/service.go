package auth

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"ytdlp-telegram-bot/internal/domain"
	"ytdlp-telegram-bot/internal/users"
)

// ErrNotAuthenticated is returned for registered users without a verified code.
var ErrNotAuthenticated = errors.New("user not authenticated")

// RegisterResult is the outcome of a registration attempt.
type RegisterResult int

const (
	Registered RegisterResult = iota
	AlreadyRegistered
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult int

const (
	Authenticated AuthResult = iota
	AlreadyAuthenticated
	NotRegistered
	Rejected
)

// Service applies the registration flow to a user store.
type Service struct {
	store users.Store
	codes *Codes
	log   logrus.FieldLogger
}

// NewService wires a store and a code issuer.
func NewService(store users.Store, codes *Codes, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, codes: codes, log: log}
}

// Register stores record unauthenticated and returns a registration code.
// The code is only logged for the operator, never sent to the chat.
func (s *Service) Register(record domain.UserRecord) (RegisterResult, string, error) {
	key := users.Key(record.UserID)
	if s.store.Has(key) {
		return AlreadyRegistered, "", nil
	}

	record.Auth = false
	if err := s.store.Set(key, record); err != nil {
		return Registered, "", fmt.Errorf("store user %s: %w", key, err)
	}

	code, err := s.codes.Issue(record.UserID)
	if err != nil {
		return Registered, "", err
	}
	s.log.WithFields(logrus.Fields{
		"user_id": record.UserID,
		"name":    record.DisplayName(),
		"code":    code,
	}).Info("user registered")
	return Registered, code, nil
}

// Authenticate verifies code for userID and marks the user authenticated.
func (s *Service) Authenticate(userID int64, code string) (AuthResult, error) {
	key := users.Key(userID)
	record, ok := s.store.Get(key)
	if !ok {
		return NotRegistered, nil
	}
	if record.Auth {
		return AlreadyAuthenticated, nil
	}

	if err := s.codes.Verify(code, userID); err != nil {
		s.log.WithField("user_id", userID).WithError(err).Warn("authentication rejected")
		return Rejected, nil
	}

	record.Auth = true
	if err := s.store.Set(key, record); err != nil {
		return Rejected, fmt.Errorf("store user %s: %w", key, err)
	}
	s.log.WithField("user_id", userID).Info("user authenticated")
	return Authenticated, nil
}

// Authorize returns the record of an authenticated user. Unknown users yield
// users.ErrNotRegistered and known but unauthenticated ones ErrNotAuthenticated.
func (s *Service) Authorize(userID int64) (domain.UserRecord, error) {
	record, ok := s.store.Get(users.Key(userID))
	if !ok {
		return domain.UserRecord{}, users.ErrNotRegistered
	}
	if !record.Auth {
		return record, ErrNotAuthenticated
	}
	return record, nil
}
