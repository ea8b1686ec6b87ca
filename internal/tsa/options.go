package tsa

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures an Authority or a Validator.
type Option func(*options)

type options struct {
	clock  func() time.Time
	logger *logrus.Entry
}

func newOptions(component string, opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	o.logger = o.logger.WithField("component", component)
	return o
}

// WithClock sets the time source used for genTime. Defaults to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) { o.logger = logger }
}
