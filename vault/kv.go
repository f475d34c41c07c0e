// Package vault implements a kv.Store over a single HashiCorp Vault KV v2
// secret. The whole store lives at one logical path; writes use
// check-and-set so concurrent processes cannot clobber one another.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/koniz-dev/grex-sub004/kv"
)

// DefaultPath is the KV v2 location used when the caller does not pick one.
const DefaultPath = "grex/storage"

// KVStore is a kv.Store for values that must never touch local disk.
type KVStore struct {
	Client *api.Client

	path string

	// guards read-modify-write cycles within this process; cross process
	// races are handled by check-and-set.
	mu sync.Mutex
}

var _ kv.Store = (*KVStore)(nil)

// Config may setup the vault client configuration. If any field is a zero
// value, it will be ignored and the default used.
type Config struct {
	Address       string
	AgentAddress  string
	ClientTimeout time.Duration
	MaxRetries    int
	Token         string
	TLSConfig
}

// TLSConfig is the configuration for TLS.
type TLSConfig struct {
	CACert             string
	CAPath             string
	ClientCert         string
	ClientKey          string
	InsecureSkipVerify bool
	TLSServerName      string
}

func (c Config) assign(apiCFG *api.Config) error {
	if c.Address != "" {
		apiCFG.Address = c.Address
	}

	if c.AgentAddress != "" {
		apiCFG.AgentAddress = c.AgentAddress
	}

	if c.ClientTimeout > 0 {
		apiCFG.Timeout = c.ClientTimeout
	}

	if c.MaxRetries > 0 {
		apiCFG.MaxRetries = c.MaxRetries
	}

	if c.TLSServerName != "" {
		err := apiCFG.ConfigureTLS(&api.TLSConfig{
			CACert:        c.CACert,
			CAPath:        c.CAPath,
			ClientCert:    c.ClientCert,
			ClientKey:     c.ClientKey,
			TLSServerName: c.TLSServerName,
			Insecure:      c.InsecureSkipVerify,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// ConfigOptFn is a functional input option to configure a vault store.
type ConfigOptFn func(Config) Config

// WithConfig provides a configuration to the store constructor.
func WithConfig(config Config) ConfigOptFn {
	return func(Config) Config {
		return config
	}
}

// WithTLSConfig allows one to set the TLS config only.
func WithTLSConfig(tlsCFG TLSConfig) ConfigOptFn {
	return func(cfg Config) Config {
		cfg.TLSConfig = tlsCFG
		return cfg
	}
}

// NewKVStore creates an instance of a KVStore at the provided KV v2 path.
// The client is configured using the standard vault environment variables.
// https://www.vaultproject.io/docs/commands/index.html#environment-variables
func NewKVStore(path string, cfgOpts ...ConfigOptFn) (*KVStore, error) {
	explicitConfig := Config{}
	for _, o := range cfgOpts {
		explicitConfig = o(explicitConfig)
	}

	cfg := api.DefaultConfig()
	if cfg.Error != nil {
		return nil, cfg.Error
	}

	err := explicitConfig.assign(cfg)
	if err != nil {
		return nil, err
	}

	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	if explicitConfig.Token != "" {
		c.SetToken(explicitConfig.Token)
	}

	if path == "" {
		path = DefaultPath
	}

	return &KVStore{
		Client: c,
		path:   path,
	}, nil
}

// loadPairs retrieves the stored key value map and the version of the secret
// retrieved. The version ensures that concurrent updates will not overwrite
// one another.
func (s *KVStore) loadPairs(ctx context.Context) (map[string]string, int, error) {
	sec, err := s.Client.Logical().Read(fmt.Sprintf("/secret/data/%s", s.path))
	if err != nil {
		return nil, -1, err
	}

	m := map[string]string{}
	if sec == nil {
		return m, 0, nil
	}

	data, ok := sec.Data["data"].(map[string]interface{})
	if !ok {
		return nil, -1, fmt.Errorf("value found in secret data is not map[string]interface{}")
	}

	for k, v := range data {
		val, ok := v.(string)
		if !ok {
			continue
		}
		m[k] = val
	}

	metadata, ok := sec.Data["metadata"].(map[string]interface{})
	if !ok {
		return nil, -1, fmt.Errorf("value found in secret metadata is not map[string]interface{}")
	}

	var version int
	switch v := metadata["version"].(type) {
	case json.Number:
		ver, err := v.Int64()
		if err != nil {
			return nil, -1, err
		}
		version = int(ver)
	case string:
		ver, err := strconv.Atoi(v)
		if err != nil {
			return nil, -1, fmt.Errorf("version provided is not a valid integer: %v", err)
		}
		version = ver
	case int:
		version = v
	default:
		return nil, -1, fmt.Errorf("version provided is %T not a string or int", v)
	}

	return m, version, nil
}

// putPairs writes the full key value map.
// If version is negative, the write will overwrite all specified values.
// If version is 0, the write will only be allowed if the secret does not exist.
// If version is non-zero, the write will only be allowed if the secret's
// current version in vault matches the version specified.
func (s *KVStore) putPairs(ctx context.Context, data map[string]string, version int) error {
	m := map[string]interface{}{"data": data}

	if version >= 0 {
		m["options"] = map[string]interface{}{"cas": version}
	}

	if _, err := s.Client.Logical().Write(fmt.Sprintf("/secret/data/%s", s.path), m); err != nil {
		return err
	}

	return nil
}

// GetString retrieves the value at the provided key.
func (s *KVStore) GetString(ctx context.Context, key string) (string, error) {
	data, _, err := s.loadPairs(ctx)
	if err != nil {
		return "", err
	}

	v, ok := data[key]
	if !ok {
		return "", kv.ErrKeyNotFound
	}
	return v, nil
}

// SetString sets the key value pair provided.
func (s *KVStore) SetString(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ver, err := s.loadPairs(ctx)
	if err != nil {
		return err
	}

	data[key] = value
	return s.putPairs(ctx, data, ver)
}

// GetInt retrieves the integer value at the provided key.
func (s *KVStore) GetInt(ctx context.Context, key string) (int64, error) {
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

// SetInt sets the key to the provided integer value.
func (s *KVStore) SetInt(ctx context.Context, key string, value int64) error {
	return s.SetString(ctx, key, strconv.FormatInt(value, 10))
}

// Remove removes the key provided. Removing an absent key is a no-op.
func (s *KVStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ver, err := s.loadPairs(ctx)
	if err != nil {
		return err
	}

	if _, ok := data[key]; !ok {
		return nil
	}

	delete(data, key)
	return s.putPairs(ctx, data, ver)
}

// ContainsKey reports whether the key holds a value.
func (s *KVStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	data, _, err := s.loadPairs(ctx)
	if err != nil {
		return false, err
	}

	_, ok := data[key]
	return ok, nil
}
