package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/labstack/gommon/log"

	"github.com/lachlan2k/gatekeep/internal/identity"
)

// The three durable keys making up a credential record.
const (
	KeyToken         = "token"
	KeyUser          = "user"
	KeyFeatureAccess = "featureAccess"
)

var allKeys = []string{KeyToken, KeyUser, KeyFeatureAccess}

var (
	ErrEmptyToken = errors.New("credential token is empty")
	ErrNoProfile  = errors.New("credential profile is missing")
)

// Backend is durable key-value storage. WriteAll must apply every entry or none of them,
// and DeleteAll must not fail when keys are already absent.
type Backend interface {
	ReadAll() (map[string]string, error)
	WriteAll(entries map[string]string) error
	DeleteAll(keys []string) error
}

// Record is what Load returns. Each field is independently optional.
type Record struct {
	Token         string
	User          *identity.Profile
	FeatureAccess identity.FeatureAccess
}

// Complete reports whether the record is usable as a session: a token and the profile it belongs to.
func (r Record) Complete() bool {
	return r.Token != "" && r.User != nil
}

// Empty reports whether nothing at all was found.
func (r Record) Empty() bool {
	return r.Token == "" && r.User == nil && r.FeatureAccess == nil
}

// Store is the single shared credential store read by the session machine and the HTTP gateway.
type Store struct {
	backend Backend
	logger  *log.Logger

	// Serialises writers within this process. Cross-process atomicity is the backend's job.
	mu sync.Mutex

	// Set when the backend refused a Clear. The record it still holds is hidden from Load
	// until a later delete goes through or a new record replaces it.
	clearPending bool
}

func New(backend Backend, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New("credstore")
	}

	return &Store{
		backend: backend,
		logger:  logger,
	}
}

// Save replaces the record with token, user and access in one backend write.
// It validates and encodes everything before touching the backend, so a failure leaves the
// previous record exactly as it was.
func (s *Store) Save(token string, user *identity.Profile, access identity.FeatureAccess) error {
	if token == "" {
		return ErrEmptyToken
	}

	if user == nil {
		return ErrNoProfile
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("couldn't encode profile: %w", err)
	}

	// A nil map is persisted as JSON null so the role fallback applies on load.
	accessJSON, err := json.Marshal(access)
	if err != nil {
		return fmt.Errorf("couldn't encode feature access: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.backend.WriteAll(map[string]string{
		KeyToken:         token,
		KeyUser:          string(userJSON),
		KeyFeatureAccess: string(accessJSON),
	})
	if err != nil {
		return fmt.Errorf("couldn't persist credentials: %w", err)
	}
	s.clearPending = false

	return nil
}

// Load never fails: an unreadable backend or a missing/corrupt token is "no session".
func (s *Store) Load() Record {
	s.mu.Lock()
	if s.clearPending && !s.retryClear() {
		s.mu.Unlock()
		return Record{}
	}
	entries, err := s.backend.ReadAll()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warnf("Couldn't read credential store, treating as signed out: %v", err)
		return Record{}
	}

	var rec Record

	if token, ok := entries[KeyToken]; ok && validToken(token) {
		rec.Token = token
	} else if ok {
		s.logger.Warnf("Ignoring corrupt token in credential store")
	}

	if raw, ok := entries[KeyUser]; ok && raw != "" && raw != "null" {
		user := new(identity.Profile)
		if err := json.Unmarshal([]byte(raw), user); err != nil {
			s.logger.Warnf("Ignoring corrupt profile in credential store: %v", err)
		} else {
			rec.User = user
		}
	}

	if raw, ok := entries[KeyFeatureAccess]; ok && raw != "" && raw != "null" {
		var access identity.FeatureAccess
		if err := json.Unmarshal([]byte(raw), &access); err != nil {
			s.logger.Warnf("Ignoring corrupt feature access map in credential store: %v", err)
		} else {
			rec.FeatureAccess = access
		}
	}

	return rec
}

// Token returns just the current bearer token, or "" when there is none.
func (s *Store) Token() string {
	return s.Load().Token
}

// Clear removes all three keys. Clearing an empty store is a no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteAll(allKeys); err != nil {
		s.clearPending = true
		return fmt.Errorf("couldn't clear credentials: %w", err)
	}
	s.clearPending = false

	return nil
}

// retryClear reports whether the pending clear has now gone through. Called with mu held.
func (s *Store) retryClear() bool {
	if err := s.backend.DeleteAll(allKeys); err != nil {
		s.logger.Debugf("Credential store still refuses to clear: %v", err)
		return false
	}

	s.logger.Infof("Stale credential record cleared")
	s.clearPending = false
	return true
}

// A token goes straight into an Authorization header, so anything that could break
// header framing is treated as corrupt.
func validToken(token string) bool {
	if token == "" {
		return false
	}

	for i := 0; i < len(token); i++ {
		c := token[i]
		if c <= ' ' || c == 0x7f {
			return false
		}
	}

	return true
}
