package usdcpay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitwit/usdcpay/logger"
	"github.com/vitwit/usdcpay/metrics"
	"github.com/vitwit/usdcpay/payment"
)

type Option func(*Storefront)

func WithLogger(l logger.Logger) Option {
	return func(s *Storefront) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Storefront) {
		s.metrics = r
	}
}

// WithRegisterer sets where the prometheus recorder registers its
// collectors when metrics are enabled. The default is the global registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Storefront) {
		s.registerer = reg
	}
}

func WithNotifier(n payment.Notifier) Option {
	return func(s *Storefront) {
		s.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Storefront) {
		s.now = now
	}
}
