// Package secure wraps a kv.Store so that every value is sealed with an
// AEAD before it reaches the backing store. Keys remain in the clear; values
// are unreadable and untamperable without the passphrase.
//
// The seal key is derived from a passphrase with argon2id. The random KDF
// salt and a sealed canary value live in the backing store under reserved
// keys, which the wrapper hides from callers.
package secure

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/koniz-dev/grex-sub004/kv"
)

const (
	// reservedPrefix marks keys the wrapper keeps for itself.
	reservedPrefix = "secure."

	saltKey   = reservedPrefix + "kdf_salt"
	canaryKey = reservedPrefix + "canary"

	// canaryPlaintext is sealed on first open and verified on every
	// subsequent open to detect a wrong passphrase early.
	canaryPlaintext = "grex-secure-v1"

	saltLen = 16
)

// ErrPassphraseMismatch is returned by Open when the provided passphrase
// cannot unseal the store's canary value.
var ErrPassphraseMismatch = errors.New("passphrase does not match sealed store")

// argon2id parameters; the x/crypto recommended interactive settings.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

// Store is a kv.Store that seals values at rest.
type Store struct {
	inner kv.Store
	aead  cipher.AEAD
	log   *zap.Logger
}

var _ kv.Store = (*Store)(nil)

// Option is a functional option for Open.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// Open derives the seal key from passphrase and returns a sealed view over
// inner. A store opened for the first time is initialized with a fresh KDF
// salt; on later opens the passphrase is verified against the stored canary
// before any caller data is touched.
func Open(ctx context.Context, inner kv.Store, passphrase string, opts ...Option) (*Store, error) {
	s := &Store{
		inner: inner,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	fresh := false
	encodedSalt, err := inner.GetString(ctx, saltKey)
	if kv.IsNotFound(err) {
		fresh = true
		salt := make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("generate kdf salt: %w", err)
		}
		encodedSalt = base64.StdEncoding.EncodeToString(salt)
	} else if err != nil {
		return nil, fmt.Errorf("read kdf salt: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(encodedSalt)
	if err != nil {
		return nil, fmt.Errorf("decode kdf salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	s.aead = aead

	if fresh {
		if err := inner.SetString(ctx, saltKey, encodedSalt); err != nil {
			return nil, fmt.Errorf("persist kdf salt: %w", err)
		}
		sealed, err := s.seal(canaryPlaintext)
		if err != nil {
			return nil, err
		}
		if err := inner.SetString(ctx, canaryKey, sealed); err != nil {
			return nil, fmt.Errorf("persist canary: %w", err)
		}
		s.log.Info("Initialized sealed store")
		return s, nil
	}

	sealed, err := inner.GetString(ctx, canaryKey)
	if kv.IsNotFound(err) {
		return nil, errors.New("sealed store has a kdf salt but no canary; store is corrupted")
	} else if err != nil {
		return nil, fmt.Errorf("read canary: %w", err)
	}

	plaintext, err := s.open(sealed)
	if err != nil || plaintext != canaryPlaintext {
		return nil, ErrPassphraseMismatch
	}

	return s, nil
}

// seal encrypts value and encodes nonce plus ciphertext as base64.
func (s *Store) seal(value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open decodes and decrypts a value produced by seal.
func (s *Store) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", errors.New("sealed value shorter than nonce")
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("unseal value: %w", err)
	}
	return string(plaintext), nil
}

func reserved(key string) bool {
	return strings.HasPrefix(key, reservedPrefix)
}

// GetString retrieves and unseals the value at the provided key.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	if reserved(key) {
		return "", kv.ErrKeyNotFound
	}

	sealed, err := s.inner.GetString(ctx, key)
	if err != nil {
		return "", err
	}

	value, err := s.open(sealed)
	if err != nil {
		return "", fmt.Errorf("unseal value at %q: %w", key, err)
	}
	return value, nil
}

// SetString seals value and stores it at key.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	if reserved(key) {
		return kv.ErrKeyReserved
	}

	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.SetString(ctx, key, sealed)
}

// GetInt retrieves and unseals the integer value at the provided key.
func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := s.GetString(ctx, key)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse integer at %q: %w", key, err)
	}
	return n, nil
}

// SetInt seals the integer value and stores it at key.
func (s *Store) SetInt(ctx context.Context, key string, value int64) error {
	return s.SetString(ctx, key, strconv.FormatInt(value, 10))
}

// Remove removes the key provided. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, key string) error {
	if reserved(key) {
		return kv.ErrKeyReserved
	}
	return s.inner.Remove(ctx, key)
}

// ContainsKey reports whether the key holds a value. Reserved keys are
// reported as absent.
func (s *Store) ContainsKey(ctx context.Context, key string) (bool, error) {
	if reserved(key) {
		return false, nil
	}
	return s.inner.ContainsKey(ctx, key)
}
