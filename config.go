package fscache

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/jmgilman/go/fscache/internal/envelope"
)

// Environment variables consulted by LoadConfig. They override the file.
const (
	EnvDir           = "FSCACHE_DIR"
	EnvSecret        = "FSCACHE_SECRET"
	EnvCipher        = "FSCACHE_CIPHER"
	EnvDefaultTTL    = "FSCACHE_DEFAULT_TTL"
	EnvCodec         = "FSCACHE_CODEC"
	EnvPurgeAllFiles = "FSCACHE_PURGE_ALL_FILES"
)

// DefaultDotEnvFile is loaded by LoadConfig when it exists.
const DefaultDotEnvFile = ".env"

// Config holds the construction parameters of a Store.
type Config struct {
	// Dir is the cache directory. It is created if missing.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Secret enables encryption when non-empty.
	Secret string `mapstructure:"secret" yaml:"secret"`
	// Cipher names the symmetric cipher. Defaults to aes-256-cbc.
	Cipher string `mapstructure:"cipher" yaml:"cipher"`
	// DefaultTTL is the lifetime in seconds of entries written with DefaultTTL().
	// It has no default: left at zero, every default-TTL entry expires the
	// moment it is written. Any integer is accepted; negative values behave
	// like zero.
	DefaultTTL int64 `mapstructure:"default_ttl" yaml:"default_ttl"`
	// Codec names the serialization format. Defaults to json.
	Codec string `mapstructure:"codec" yaml:"codec"`
	// PurgeAllFiles makes Purge consider every regular file in Dir, not only
	// files with the .cache suffix.
	PurgeAllFiles bool `mapstructure:"purge_all_files" yaml:"purge_all_files"`
}

// SetDefaults applies default values to unset fields in the configuration.
func (c *Config) SetDefaults() {
	if c.Cipher == "" {
		c.Cipher = envelope.DefaultCipher
	}
	if c.Codec == "" {
		c.Codec = envelope.DefaultCodec
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return fmt.Errorf("%w: cache directory cannot be empty", ErrInvalidConfig)
	}
	if _, err := envelope.LookupCipher(c.Cipher); err != nil {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedCipher, c.Cipher,
			strings.Join(envelope.SupportedCiphers(), ", "))
	}
	if _, err := envelope.LookupCodec(c.Codec); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// String renders the configuration with the secret redacted.
func (c Config) String() string {
	secret := ""
	if c.Secret != "" {
		secret = "<redacted>"
	}
	return fmt.Sprintf("Config{Dir:%q Secret:%q Cipher:%q DefaultTTL:%d Codec:%q PurgeAllFiles:%t}",
		c.Dir, secret, c.Cipher, c.DefaultTTL, c.Codec, c.PurgeAllFiles)
}

// ConfigFromMap decodes a loosely typed map, such as a section of a larger
// configuration tree. default_ttl accepts integer seconds or a duration
// string.
func ConfigFromMap(m map[string]any) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       ttlDecodeHook,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// ttlDecodeHook turns duration strings into seconds for int64 fields.
func ttlDecodeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Int64 {
		return data, nil
	}
	return ParseSeconds(data.(string))
}

// LoadConfig reads a YAML configuration file and applies environment
// overrides. An empty path skips the file. Variables from a .env file in the
// working directory are used when the process environment does not set them.
// Empty variables count as unset.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, DefaultDotEnvFile, os.LookupEnv)
}

func loadConfig(path, dotEnvPath string, lookupEnv func(string) (string, bool)) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("%w: failed to parse %q: %w", ErrInvalidConfig, path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	cfg, err := ConfigFromMap(raw)
	if err != nil {
		return Config{}, err
	}

	dotEnv := map[string]string{}
	if dotEnvPath != "" {
		if _, statErr := os.Stat(dotEnvPath); statErr == nil {
			dotEnv, err = godotenv.Read(dotEnvPath)
			if err != nil {
				return Config{}, fmt.Errorf("failed to read %q: %w", dotEnvPath, err)
			}
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotEnv[key]
		return v, ok && v != ""
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDir); ok {
		cfg.Dir = v
	}
	if v, ok := lookup(EnvSecret); ok {
		cfg.Secret = v
	}
	if v, ok := lookup(EnvCipher); ok {
		cfg.Cipher = v
	}
	if v, ok := lookup(EnvCodec); ok {
		cfg.Codec = v
	}
	if v, ok := lookup(EnvDefaultTTL); ok {
		n, err := ParseSeconds(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvDefaultTTL, err)
		}
		cfg.DefaultTTL = n
	}
	if v, ok := lookup(EnvPurgeAllFiles); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvPurgeAllFiles, err)
		}
		cfg.PurgeAllFiles = b
	}
	return nil
}
