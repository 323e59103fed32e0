// Package credential manages the bearer token used against the VCF
// Operations suite API.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrUnavailable indicates no usable token exists and acquisition could not
// produce one. Callers treat this as fatal.
var ErrUnavailable = errors.New("bearer token unavailable")

// Acquirer obtains a fresh bearer token and writes it to the token slot.
type Acquirer interface {
	Acquire() error
}

// Store reads and refreshes the bearer token kept in a local slot file. The
// token carries no embedded expiry; staleness only surfaces as a 401 from
// the remote API.
type Store struct {
	tokenPath string
	acquirer  Acquirer
}

// NewStore creates a credential store backed by the given slot file.
func NewStore(tokenPath string, acquirer Acquirer) *Store {
	return &Store{
		tokenPath: tokenPath,
		acquirer:  acquirer,
	}
}

// GetToken returns the current bearer token, acquiring a new one if the slot
// is empty or missing.
func (s *Store) GetToken() (string, error) {
	token, err := s.readSlot()
	if err == nil {
		log.Debug("Bearer token loaded from slot file")
		return token, nil
	}

	log.Info("🔑 Bearer token not found, acquiring new token")
	return s.Refresh()
}

// Refresh forces a new acquisition and returns the resulting token.
func (s *Store) Refresh() (string, error) {
	if s.acquirer == nil {
		return "", fmt.Errorf("%w: no acquirer configured", ErrUnavailable)
	}

	if err := s.acquirer.Acquire(); err != nil {
		return "", fmt.Errorf("%w: acquisition failed: %s", ErrUnavailable, err)
	}

	token, err := s.readSlot()
	if err != nil {
		return "", fmt.Errorf("%w: slot unreadable after acquisition: %s", ErrUnavailable, err)
	}

	log.Info("✅ New bearer token acquired")
	return token, nil
}

func (s *Store) readSlot() (string, error) {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token slot %s is empty", s.tokenPath)
	}

	return token, nil
}
