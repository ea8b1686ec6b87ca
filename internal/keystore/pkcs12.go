package keystore

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"software.sslmate.com/src/go-pkcs12"
)

// EmbeddedPrefix marks a keystore path that is read from the bundled
// resources instead of the filesystem.
const EmbeddedPrefix = "embedded:"

// PKCS12Loader reads a PKCS#12 container holding exactly one key entry. The
// container is read and decoded once; later calls return the cached result.
type PKCS12Loader struct {
	path      string
	password  string
	resources fs.FS
	logger    *logrus.Entry

	once sync.Once
	cert *x509.Certificate
	key  crypto.PrivateKey
	err  error
}

// Option configures a PKCS12Loader.
type Option func(*PKCS12Loader)

// WithResources sets the file system "embedded:" paths are read from.
func WithResources(fsys fs.FS) Option {
	return func(l *PKCS12Loader) { l.resources = fsys }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(l *PKCS12Loader) { l.logger = logger }
}

// NewPKCS12Loader creates a loader for the container at path.
func NewPKCS12Loader(path, password string, opts ...Option) *PKCS12Loader {
	l := &PKCS12Loader{
		path:     path,
		password: password,
		logger:   logrus.NewEntry(logrus.StandardLogger()).WithField("component", "keystore"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Certificate implements CredentialSource.
func (l *PKCS12Loader) Certificate() (*x509.Certificate, error) {
	l.once.Do(l.load)
	return l.cert, l.err
}

// PrivateKey implements CredentialSource.
func (l *PKCS12Loader) PrivateKey() (crypto.PrivateKey, error) {
	l.once.Do(l.load)
	return l.key, l.err
}

func (l *PKCS12Loader) load() {
	data, err := l.read()
	if err != nil {
		l.err = &Error{Op: "read", Path: l.path, Err: err}
		return
	}

	key, cert, _, err := pkcs12.DecodeChain(data, l.password)
	if err != nil {
		l.err = &Error{Op: "decode", Path: l.path, Err: classifyDecodeError(err)}
		return
	}
	if key == nil {
		l.err = &Error{Op: "decode", Path: l.path, Err: ErrNoKey}
		return
	}

	l.cert, l.key = cert, key
	l.logger.WithFields(logrus.Fields{
		"path":    l.path,
		"subject": cert.Subject.String(),
		"serial":  cert.SerialNumber.String(),
	}).Info("Loaded signing certificate")
}

func (l *PKCS12Loader) read() ([]byte, error) {
	if name, ok := strings.CutPrefix(l.path, EmbeddedPrefix); ok {
		if l.resources == nil {
			return nil, fmt.Errorf("%w: no embedded resources configured", ErrNotFound)
		}
		data, err := fs.ReadFile(l.resources, strings.TrimPrefix(name, "/"))
		if err != nil {
			return nil, notFound(err)
		}
		return data, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, notFound(err)
	}
	return data, nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// classifyDecodeError maps go-pkcs12 failures onto the keystore sentinels.
// The library reports key bag problems only through error text.
func classifyDecodeError(err error) error {
	if errors.Is(err, pkcs12.ErrIncorrectPassword) || errors.Is(err, pkcs12.ErrDecryption) {
		return fmt.Errorf("%w: %w", ErrWrongPassword, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "expected exactly one key bag"):
		return fmt.Errorf("%w: %w", ErrMultipleKeys, err)
	case strings.Contains(msg, "private key missing"):
		return fmt.Errorf("%w: %w", ErrNoKey, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
