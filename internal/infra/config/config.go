package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Tally  TallyConfig  `yaml:"tally"`
	Edit   EditConfig   `yaml:"edit"`
	Batch  BatchConfig  `yaml:"batch"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
	Audit  AuditConfig  `yaml:"audit"`
}

// TallyConfig holds Tally API client settings.
type TallyConfig struct {
	APIToken   string `yaml:"api_token"`
	BaseURL    string `yaml:"base_url"`
	GraphQLURL string `yaml:"graphql_url"`

	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`

	// RequestsPerMinute throttles outgoing calls client-side. 0 disables it.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`

	MaxResponseBytes int64 `yaml:"max_response_bytes"`
	MaxPages         int   `yaml:"max_pages"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Pool           PoolConfig           `yaml:"pool"`
}

// CircuitBreakerConfig holds circuit breaker settings for the Tally client.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// EditConfig holds the default flags of write operations.
type EditConfig struct {
	DryRun     bool `yaml:"dry_run"`
	Backup     bool `yaml:"backup"`
	Optimistic bool `yaml:"optimistic"`
	DiffDepth  int  `yaml:"diff_depth"`
}

// BatchConfig holds batch runner settings.
type BatchConfig struct {
	ContinueOnFail bool `yaml:"continue_on_fail"`
}

// AuditConfig holds edit audit log settings.
type AuditConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Path      string          `yaml:"path"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig holds audit log retention policy settings.
type RetentionConfig struct {
	MaxAge  string `yaml:"max_age"`  // duration string, e.g. "2160h" (90 days)
	MaxSize string `yaml:"max_size"` // e.g. "100MB"
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the data directory under $HOME/.tallynode.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".tallynode")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Tally: TallyConfig{
			BaseURL:           "https://api.tally.so",
			GraphQLURL:        "https://api.tally.so/graphql",
			ConnTimeout:       10 * time.Second,
			RespTimeout:       30 * time.Second,
			RequestsPerMinute: 100,
			Burst:             10,
			MaxResponseBytes:  10 * 1024 * 1024,
			MaxPages:          50,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Edit: EditConfig{
			Backup:     true,
			Optimistic: true,
			DiffDepth:  1,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "stdout",
		},
		Audit: AuditConfig{
			Path: filepath.Join(defaultDataDir(), "audit.jsonl"),
			Retention: RetentionConfig{
				MaxAge: "2160h",
			},
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("TALLYNODE_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps TALLYNODE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TALLYNODE_API_TOKEN"); v != "" {
		cfg.Tally.APIToken = v
	}
	if v := os.Getenv("TALLYNODE_BASE_URL"); v != "" {
		cfg.Tally.BaseURL = v
	}
	if v := os.Getenv("TALLYNODE_GRAPHQL_URL"); v != "" {
		cfg.Tally.GraphQLURL = v
	}
	if v := os.Getenv("TALLYNODE_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tally.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("TALLYNODE_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.Tally.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("TALLYNODE_EDIT_DRY_RUN"); v != "" {
		cfg.Edit.DryRun = v == "true"
	}
	if v := os.Getenv("TALLYNODE_EDIT_DIFF_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Edit.DiffDepth = n
		}
	}
	if v := os.Getenv("TALLYNODE_BATCH_CONTINUE_ON_FAIL"); v != "" {
		cfg.Batch.ContinueOnFail = v == "true"
	}
	if v := os.Getenv("TALLYNODE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TALLYNODE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("TALLYNODE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TALLYNODE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("TALLYNODE_AUDIT_ENABLED"); v == "true" {
		cfg.Audit.Enabled = true
	}
	if v := os.Getenv("TALLYNODE_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	secrets := map[string]*string{
		"tally.api_token": &cfg.Tally.APIToken,
	}
	for name, fp := range secrets {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*fp = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
