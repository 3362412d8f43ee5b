// Package config loads the optional defaults file for pngstash.
//
// The file is selected by the --config flag or, failing that, the
// PNGSTASH_CONFIG environment variable. Without either, built-in defaults
// are used. Flags given explicitly on the command line always win over the
// file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/pngstash/pkg/crypt"
	"github.com/andresmejia3/pngstash/pkg/packaging"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "PNGSTASH_CONFIG"

// Config holds defaults for the conceal, reveal and batch commands.
type Config struct {
	// Cipher is one of none, aes-gcm, xchacha20, age.
	Cipher string `yaml:"cipher"`

	// Compression is one of none, gzip, zstd, lz4.
	Compression string `yaml:"compression"`

	// Threshold is the largest compressed/original ratio kept compressed.
	Threshold float64 `yaml:"threshold"`

	// Compress enables the compression attempt.
	Compress bool `yaml:"compress"`

	// Parity adds a Reed-Solomon frame around the ciphertext.
	Parity bool `yaml:"parity"`

	// Workers bounds batch concurrency. 0 means one per CPU.
	Workers int `yaml:"workers"`

	// AgeWorkFactor is the scrypt work factor for the age cipher.
	AgeWorkFactor int `yaml:"age_work_factor"`

	// PBKDF2Iterations is the iteration count for the aes-gcm cipher.
	PBKDF2Iterations int `yaml:"pbkdf2_iterations"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Cipher:           crypt.AESGCM.String(),
		Compression:      packaging.CompressionGzip.String(),
		Threshold:        packaging.DefaultThreshold,
		Compress:         true,
		AgeWorkFactor:    crypt.DefaultAgeWorkFactor,
		PBKDF2Iterations: crypt.DefaultPBKDF2Iterations,
	}
}

// Load reads the file at path, or the file named by EnvVar when path is
// empty. With neither set it returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file on top of the defaults and validates it.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	var errs []error
	if _, err := crypt.ParseAlgorithm(c.Cipher); err != nil {
		errs = append(errs, err)
	}
	if _, err := packaging.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be in (0, 1], got %v", c.Threshold))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers cannot be negative"))
	}
	if c.AgeWorkFactor < 1 || c.AgeWorkFactor > crypt.MaxAgeWorkFactor {
		errs = append(errs, fmt.Errorf("age_work_factor must be between 1 and %d, got %d", crypt.MaxAgeWorkFactor, c.AgeWorkFactor))
	}
	if c.PBKDF2Iterations < 1 || c.PBKDF2Iterations > crypt.MaxPBKDF2Iterations {
		errs = append(errs, fmt.Errorf("pbkdf2_iterations must be between 1 and %d, got %d", crypt.MaxPBKDF2Iterations, c.PBKDF2Iterations))
	}
	return errors.Join(errs...)
}

// CipherAlgorithm parses Cipher.
func (c *Config) CipherAlgorithm() (crypt.Algorithm, error) {
	return crypt.ParseAlgorithm(c.Cipher)
}

// CipherOptions returns the key derivation options for crypt.New.
func (c *Config) CipherOptions() []crypt.Option {
	return []crypt.Option{
		crypt.WithAgeWorkFactor(c.AgeWorkFactor),
		crypt.WithPBKDF2Iterations(c.PBKDF2Iterations),
	}
}

// PackagingOptions returns the options for packaging.Pack.
func (c *Config) PackagingOptions() (packaging.Options, error) {
	compression, err := packaging.ParseCompression(c.Compression)
	if err != nil {
		return packaging.Options{}, err
	}
	return packaging.Options{
		Compress:    c.Compress && compression != packaging.CompressionNone,
		Compression: compression,
		Threshold:   c.Threshold,
	}, nil
}
