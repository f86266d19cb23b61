package bridge

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wippyai/engine-bridge/loader"
	"github.com/wippyai/engine-bridge/metrics"
)

type options struct {
	logger         *zap.Logger
	metrics        *metrics.Collector
	loaderOpts     []loader.Option
	rateLimit      rate.Limit
	rateBurst      int
	previewTimeout time.Duration
	queueHint      int
}

func defaultOptions() options {
	return options{
		rateLimit: rate.Inf,
		queueHint: 64,
	}
}

// Option configures a Bridge or Session.
type Option func(*options)

// WithLogger sets the logger. The package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records bridge telemetry on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithRateLimit caps config frames per second. Frames wait for a token
// before send_ipc; the wait honors the caller's context.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.rateLimit = limit
		o.rateBurst = burst
	}
}

// WithPreviewTimeout bounds how long Generate waits for the engine.
// Zero waits for as long as the context allows.
func WithPreviewTimeout(d time.Duration) Option {
	return func(o *options) { o.previewTimeout = d }
}

// WithQueueHint sizes the inbound queue's initial capacity. The queue
// grows without bound regardless.
func WithQueueHint(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueHint = n
		}
	}
}

// WithLoaderOptions passes options through to loader.Load from Open.
func WithLoaderOptions(opts ...loader.Option) Option {
	return func(o *options) { o.loaderOpts = append(o.loaderOpts, opts...) }
}
