// Package security provides credential handling, log redaction, audit
// logging, rate limiting and request validation for the purge service.
package security

import (
	"net/url"
	"slices"
	"sync"
)

// Well-known credential names populated from configuration at startup.
const (
	CredDatabaseDSN      = "database.dsn"
	CredDatabasePassword = "database.password"
	CredGatewayToken     = "gateway.bearer_token"
	CredGatewayPassword  = "gateway.basic_pass"
)

// CredentialStore is a thread-safe store for the secrets the service holds
// at runtime. Its values feed the Redactor so they never reach a log line.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds: make(map[string]string),
	}
}

// Set stores a credential, overwriting any previous value.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[name] = value
}

// SetDSN stores a database connection string. When the DSN is URL shaped
// and carries a password, the password is stored separately so it is
// redacted even when it shows up outside the full DSN.
func (s *CredentialStore) SetDSN(dsn string) {
	if dsn == "" {
		return
	}
	s.Set(CredDatabaseDSN, dsn)
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return
	}
	if pass, ok := u.User.Password(); ok && pass != "" {
		s.Set(CredDatabasePassword, pass)
	}
}

// Get returns the credential value and true, or "" and false if not found.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Names returns a sorted list of all credential names.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns all non-empty credential values. Order is not guaranteed.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

// Len returns the number of stored credentials.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
