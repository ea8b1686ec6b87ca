// Package config loads the service configuration from a YAML file and
// QTSA_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/tsa"
)

// EnvPrefix prefixes every environment override, e.g. QTSA_TSA_POLICY_OID.
const EnvPrefix = "QTSA"

// Config is the complete service configuration.
type Config struct {
	TSA      TSAConfig      `yaml:"tsa"`
	Keystore KeystoreConfig `yaml:"keystore"`
	Server   ServerConfig   `yaml:"server"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

// TSAConfig configures the signing engine. Algorithms are names ("SHA256")
// or dotted OIDs.
type TSAConfig struct {
	ESSCertIDAlgorithm     string   `yaml:"ess_cert_id_algorithm" split_words:"true" validate:"required,hashalg"`
	SigningDigestAlgorithm string   `yaml:"signing_digest_algorithm" split_words:"true" validate:"required,hashalg"`
	AcceptedHashAlgorithms []string `yaml:"accepted_hash_algorithms" split_words:"true" validate:"required,min=1,dive,hashalg"`
	PolicyOID              string   `yaml:"policy_oid" envconfig:"POLICY_OID" validate:"required,oid"`
	AcceptedPolicies       []string `yaml:"accepted_policies" split_words:"true" validate:"dive,oid"`
}

// KeystoreConfig locates the PKCS#12 signing credential. A path starting
// with "embedded:" names a bundled resource.
type KeystoreConfig struct {
	Path     string `yaml:"path" validate:"required"`
	Password string `yaml:"password"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	TSPPort         int           `yaml:"tsp_port" envconfig:"TSP_PORT" validate:"min=1,max=65535"`
	APIPort         int           `yaml:"api_port" envconfig:"API_PORT" validate:"min=1,max=65535,nefield=TSPPort"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" split_words:"true" validate:"min=1"`
	RateLimit       float64       `yaml:"rate_limit" split_words:"true" validate:"gte=0"`
	RateBurst       int           `yaml:"rate_burst" split_words:"true" validate:"gte=0"`
}

// AuditConfig enables the hash-chained audit log when Path is set.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the logrus standard logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing is overridden. It
// has no keystore path and does not validate on its own.
func Default() *Config {
	engine := tsa.DefaultConfig()
	accepted := make([]string, 0, len(engine.AcceptedHashAlgorithms))
	for _, alg := range engine.AcceptedHashAlgorithms {
		accepted = append(accepted, alg.String())
	}

	return &Config{
		TSA: TSAConfig{
			ESSCertIDAlgorithm:     engine.ESSCertIDAlgorithm.String(),
			SigningDigestAlgorithm: engine.SigningDigestAlgorithm.String(),
			AcceptedHashAlgorithms: accepted,
			PolicyOID:              engine.PolicyOID,
		},
		Server: ServerConfig{
			TSPPort:         318,
			APIPort:         8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    64 << 10,
			RateLimit:       50,
			RateBurst:       100,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML overlays a YAML document on cfg. Unknown keys are errors.
func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("hashalg", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseHashAlgorithm(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("oid", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseOID(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %w", errors.Join(errs...))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Engine converts the TSA section to the signing engine configuration.
func (c *Config) Engine() (tsa.Config, error) {
	ess, err := domain.ParseHashAlgorithm(c.TSA.ESSCertIDAlgorithm)
	if err != nil {
		return tsa.Config{}, err
	}
	digest, err := domain.ParseHashAlgorithm(c.TSA.SigningDigestAlgorithm)
	if err != nil {
		return tsa.Config{}, err
	}
	accepted := make([]domain.HashAlgorithm, 0, len(c.TSA.AcceptedHashAlgorithms))
	for _, name := range c.TSA.AcceptedHashAlgorithms {
		alg, err := domain.ParseHashAlgorithm(name)
		if err != nil {
			return tsa.Config{}, err
		}
		accepted = append(accepted, alg)
	}

	return tsa.Config{
		ESSCertIDAlgorithm:     ess,
		SigningDigestAlgorithm: digest,
		AcceptedHashAlgorithms: accepted,
		PolicyOID:              c.TSA.PolicyOID,
		AcceptedPolicies:       c.TSA.AcceptedPolicies,
	}, nil
}

// TSPAddr is the listen address of the RFC 3161 endpoint.
func (s ServerConfig) TSPAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.TSPPort)
}

// APIAddr is the listen address of the REST API.
func (s ServerConfig) APIAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.APIPort)
}
