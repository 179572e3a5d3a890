package auth

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

// Credential is an API key/secret pair for one provider.
type Credential struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret,omitempty"`
}

// MaskedKey returns the API key safe for log output.
func (c Credential) MaskedKey() string {
	if len(c.APIKey) <= 8 {
		return "****"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// CredentialProvider resolves credentials for a provider by name. The
// payment engine treats credential storage as an external collaborator
// behind this port.
type CredentialProvider interface {
	Lookup(provider string) (Credential, bool)
}

// Static is a fixed in-memory credential set, used in tests and for
// one-off wiring.
type Static map[string]Credential

// Lookup implements CredentialProvider.
func (s Static) Lookup(provider string) (Credential, bool) {
	c, ok := s[provider]
	return c, ok
}

// Env resolves credentials from BLOGAUTO_<PROVIDER>_API_KEY and
// BLOGAUTO_<PROVIDER>_API_SECRET.
type Env struct{}

// Lookup implements CredentialProvider.
func (Env) Lookup(provider string) (Credential, bool) {
	prefix := "BLOGAUTO_" + strings.ToUpper(provider)
	key := os.Getenv(prefix + "_API_KEY")
	if key == "" {
		return Credential{}, false
	}
	return Credential{APIKey: key, APISecret: os.Getenv(prefix + "_API_SECRET")}, true
}

// Chain tries each provider in order and returns the first hit.
type Chain []CredentialProvider

// Lookup implements CredentialProvider.
func (c Chain) Lookup(provider string) (Credential, bool) {
	for _, p := range c {
		if cred, ok := p.Lookup(provider); ok {
			return cred, true
		}
	}
	return Credential{}, false
}

const (
	masterKeyFile   = "master.key"
	credentialsFile = "credentials.enc"
	keySize         = 32
	nonceSize       = 24
)

// FileStore persists credentials encrypted at rest. The credential file
// is sealed with NaCl secretbox under a per-installation master key;
// both files are written with owner-only permissions.
type FileStore struct {
	mu   sync.RWMutex
	dir  string
	key  [keySize]byte
	data map[string]Credential
}

// NewFileStore opens (or initializes) the credential store in dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}

	s := &FileStore{dir: dir, data: make(map[string]Credential)}
	if err := s.loadMasterKey(); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) loadMasterKey() error {
	path := filepath.Join(s.dir, masterKeyFile)

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(raw) != keySize {
			return fmt.Errorf("master key %s has unexpected length %d", path, len(raw))
		}
		copy(s.key[:], raw)
		return nil
	case errors.Is(err, os.ErrNotExist):
		if _, err := rand.Read(s.key[:]); err != nil {
			return fmt.Errorf("generate master key: %w", err)
		}
		if err := os.WriteFile(path, s.key[:], 0o600); err != nil {
			return fmt.Errorf("write master key: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("read master key: %w", err)
	}
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(filepath.Join(s.dir, credentialsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	if len(raw) < nonceSize {
		return fmt.Errorf("credential file is truncated")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return fmt.Errorf("credential file does not match master key")
	}
	if err := json.Unmarshal(plain, &s.data); err != nil {
		return fmt.Errorf("decode credentials: %w", err)
	}
	return nil
}

func (s *FileStore) flush() error {
	plain, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &s.key)

	path := filepath.Join(s.dir, credentialsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// Save stores or replaces the credential for a provider.
func (s *FileStore) Save(provider string, cred Credential) error {
	if provider == "" || cred.APIKey == "" {
		return fmt.Errorf("provider name and API key are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[strings.ToLower(provider)] = cred
	return s.flush()
}

// Delete removes the credential for a provider.
func (s *FileStore) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, strings.ToLower(provider))
	return s.flush()
}

// Lookup implements CredentialProvider.
func (s *FileStore) Lookup(provider string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[strings.ToLower(provider)]
	return c, ok
}

// List returns the provider names with stored credentials.
func (s *FileStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
