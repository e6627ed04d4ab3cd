package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KeyProvider supplies the shared secret. How the key reached the machine
// (manual copy, secret manager, environment) is the provider's business.
type KeyProvider interface {
	SharedSecret() ([]byte, error)
}

// FileKeyProvider reads the secret from a local file, trimming surrounding
// whitespace. With CreateIfMissing a new key is generated when the file does
// not exist yet.
type FileKeyProvider struct {
	Path            string
	CreateIfMissing bool
}

// SharedSecret implements KeyProvider.
func (p FileKeyProvider) SharedSecret() ([]byte, error) {
	data, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) && p.CreateIfMissing {
		key, genErr := GenerateKey()
		if genErr != nil {
			return nil, genErr
		}
		if writeErr := WriteKeyFile(p.Path, key, false); writeErr != nil {
			return nil, writeErr
		}
		return key, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", p.Path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("key file %s: %w", p.Path, ErrEmptySecret)
	}
	key := append([]byte(nil), trimmed...)
	zero(data)
	return key, nil
}

// EnvKeyProvider reads the secret from an environment variable.
type EnvKeyProvider struct {
	Name string
}

// SharedSecret implements KeyProvider.
func (p EnvKeyProvider) SharedSecret() ([]byte, error) {
	value := strings.TrimSpace(os.Getenv(p.Name))
	if value == "" {
		return nil, fmt.Errorf("%s: %w", p.Name, ErrEmptySecret)
	}
	return []byte(value), nil
}

// LoadSecret asks provider for the key once and wraps it in a Secret.
func LoadSecret(provider KeyProvider) (*Secret, error) {
	key, err := provider.SharedSecret()
	if err != nil {
		return nil, err
	}
	return NewSecret(key)
}

// GenerateKey returns 32 random bytes encoded as URL-safe base64, the same
// text form Fernet key files use, so existing key files keep working.
func GenerateKey() ([]byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	key := make([]byte, base64.URLEncoding.EncodedLen(len(raw)))
	base64.URLEncoding.Encode(key, raw)
	zero(raw)
	return key, nil
}

// WriteKeyFile stores key at path with owner-only permissions. Unless
// overwrite is set an existing file is left alone and an error returned.
func WriteKeyFile(path string, key []byte, overwrite bool) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("open key file %s: %w", path, err)
	}
	if _, err := file.Write(key); err != nil {
		file.Close()
		return fmt.Errorf("write key file %s: %w", path, err)
	}
	return file.Close()
}
