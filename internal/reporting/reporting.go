// Package reporting sends unexpected failures to an observability sink.
package reporting

import (
	"fmt"
	"time"

	"kerigma/internal/config"

	"github.com/getsentry/sentry-go"
)

type Reporter interface {
	Report(err error, tags map[string]string)
}

type nopReporter struct{}

func (nopReporter) Report(error, map[string]string) {}

// Nop discards reports.
var Nop Reporter = nopReporter{}

// SentryReporter captures errors on its own hub so tags never leak between
// reports.
type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter(cfg config.SentryConfig, app config.AppConfig) (*SentryReporter, error) {
	env := cfg.Environment
	if env == "" {
		env = app.Environment
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: env,
		Release:     app.Version,
		SampleRate:  cfg.SampleRate,
		ServerName:  app.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func newSentryReporterWithClient(client *sentry.Client) *SentryReporter {
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}
}

func (r *SentryReporter) Report(err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// Close flushes buffered events.
func (r *SentryReporter) Close() error {
	r.hub.Flush(5 * time.Second)
	return nil
}
