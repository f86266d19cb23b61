package loader

import (
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
)

type options struct {
	logger          *zap.Logger
	expectedVersion uint32
}

func defaultOptions() options {
	return options{expectedVersion: enginebridge.ProtocolVersion}
}

// Option configures Load.
type Option func(*options)

// WithExpectedVersion overrides the protocol version the engine must
// report.
func WithExpectedVersion(v uint32) Option {
	return func(o *options) { o.expectedVersion = v }
}

// WithLogger sets the logger for this load and the returned EngineAPI.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}
