package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/remiblancher/qtsa/internal/audit"
	"github.com/remiblancher/qtsa/internal/config"
	"github.com/remiblancher/qtsa/internal/keystore"
	"github.com/remiblancher/qtsa/internal/keystore/resources"
	"github.com/remiblancher/qtsa/internal/tsa"
)

// engines holds what every command that touches the credential needs.
type engines struct {
	cfg       *config.Config
	creds     *keystore.PKCS12Loader
	authority *tsa.Authority
	validator *tsa.Validator
	audit     audit.Writer

	// serving marks events as emitted by the server rather than the user.
	serving bool
}

// openAudit returns the configured audit writer, or a NopWriter.
func openAudit(cfg *config.Config) (audit.Writer, error) {
	if cfg.Audit.Path == "" {
		return audit.NopWriter{}, nil
	}
	w, err := audit.NewFileWriter(cfg.Audit.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return w, nil
}

// applyLogConfig reconfigures logging from the file unless the matching
// command-line flag was given.
func applyLogConfig(lc config.LogConfig) error {
	level, format := logLevel, logFormat
	flags := rootCmd.PersistentFlags()
	if !flags.Changed("log-level") && lc.Level != "" {
		level = lc.Level
	}
	if !flags.Changed("log-format") && lc.Format != "" {
		format = lc.Format
	}
	return configureLogging(level, format)
}

// loadEngines reads the configuration and builds uninitialized engines.
func loadEngines() (*engines, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := applyLogConfig(cfg.Log); err != nil {
		return nil, err
	}
	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, err
	}
	w, err := openAudit(cfg)
	if err != nil {
		return nil, err
	}

	logger := logrus.NewEntry(logrus.StandardLogger())
	creds := keystore.NewPKCS12Loader(cfg.Keystore.Path, cfg.Keystore.Password,
		keystore.WithResources(resources.FS),
		keystore.WithLogger(logger.WithField("component", "keystore")))

	return &engines{
		cfg:       cfg,
		creds:     creds,
		authority: tsa.NewAuthority(engineCfg, creds, nil, tsa.WithLogger(logger)),
		validator: tsa.NewValidator(creds, tsa.WithLogger(logger)),
		audit:     w,
	}, nil
}

// loadCredential reads the keystore once and records the access.
func (e *engines) loadCredential() error {
	cert, err := e.creds.Certificate()
	subject := ""
	if err == nil {
		subject = cert.Subject.String()
	}
	event := audit.KeyAccessedEvent(e.cfg.Keystore.Path, subject, err)
	if e.serving {
		event.WithActor(audit.ServiceActor())
	}
	if auditErr := e.audit.Write(event); auditErr != nil {
		return fmt.Errorf("failed to write audit event: %w", auditErr)
	}
	return err
}

// initialize loads the credential and initializes the requested engines.
func (e *engines) initialize(authority, validator bool) error {
	if err := e.loadCredential(); err != nil {
		return err
	}
	if authority {
		if err := e.authority.Initialize(); err != nil {
			return err
		}
	}
	if validator {
		if err := e.validator.Initialize(); err != nil {
			return err
		}
	}
	return nil
}

func (e *engines) close() error {
	return e.audit.Close()
}
