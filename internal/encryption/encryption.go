// Package encryption seals configuration secrets with AES-256-GCM so the
// SMTP password and webhook URLs can live in the config file as "enc:"
// values instead of plaintext.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prefix marks a sealed value.
const Prefix = "enc:"

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrNoKey is returned when a sealed value is opened without a key.
var ErrNoKey = errors.New("no secret key configured")

// IsSealed reports whether v carries the sealed-value prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

// GenerateKey returns a new random key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generating secret key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Sealer encrypts and decrypts secret values.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a Sealer from a base64-encoded 32-byte key.
func NewSealer(key string) (*Sealer, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNoKey
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key))
	if err != nil {
		return nil, fmt.Errorf("decoding secret key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", KeySize, len(raw))
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext and returns it as an "enc:" value.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts an "enc:" value. Values without the prefix are returned
// unchanged.
func (s *Sealer) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, Prefix))
	if err != nil {
		return "", fmt.Errorf("decoding sealed value: %w", err)
	}

	n := s.gcm.NonceSize()
	if len(data) < n {
		return "", errors.New("sealed value too short")
	}
	plaintext, err := s.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}

// OpenAll decrypts every sealed value behind the given pointers in place.
// Without a sealer any sealed value is an error naming its field.
func OpenAll(s *Sealer, fields map[string]*string) error {
	var errs []error
	for name, p := range fields {
		if p == nil || !IsSealed(*p) {
			continue
		}
		if s == nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrNoKey))
			continue
		}
		plain, err := s.Open(*p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*p = plain
	}
	return errors.Join(errs...)
}
