package registry

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/menghanl/release-gen/internal/fsutil"
)

// CredentialStore persists registry tokens outside version control, keyed by
// the absolute path of the repository they were issued for.
type CredentialStore struct {
	path string
	mu   sync.Mutex
}

type credentialFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// DefaultCredentialPath is <user config dir>/release-gen/credentials.yaml.
func DefaultCredentialPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate user config directory")
	}
	return filepath.Join(dir, "release-gen", "credentials.yaml"), nil
}

// NewCredentialStore returns a store backed by the file at path. The file is
// created on first save.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

func (s *CredentialStore) load() (*credentialFile, error) {
	f := &credentialFile{Tokens: map[string]string{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read credentials %s", s.path)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.Wrapf(err, "parse credentials %s", s.path)
	}
	if f.Tokens == nil {
		f.Tokens = map[string]string{}
	}
	return f, nil
}

// Token returns the token stored for key. ok is false when none is stored.
func (s *CredentialStore) Token(key string) (token string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return "", false, err
	}
	token, ok = f.Tokens[key]
	return token, ok && token != "", nil
}

// SetToken stores token for key, replacing any previous value. The file is
// only readable by the current user.
func (s *CredentialStore) SetToken(key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return err
	}
	f.Tokens[key] = token

	data, err := yaml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode credentials")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "create credentials directory")
	}
	return fsutil.WriteFileAtomicMode(s.path, data, 0o600)
}
