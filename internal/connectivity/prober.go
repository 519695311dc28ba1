package connectivity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Prober drives a Signal from periodic reachability checks. http(s) targets
// are probed with a HEAD request, anything else with a TCP dial.
type Prober struct {
	signal   *Signal
	target   string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   zerolog.Logger
	check    func(ctx context.Context) error
}

func NewProber(target string, interval, timeout time.Duration, initial bool, logger *zerolog.Logger) *Prober {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "connectivity-prober").Logger()
	}
	p := &Prober{
		signal:   NewSignal(initial),
		target:   target,
		interval: interval,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		logger:   l,
	}
	p.check = p.probe
	return p
}

// Online reports the result of the last probe.
func (p *Prober) Online() bool {
	return p.signal.Online()
}

// Subscribe registers handler for transitions observed by the prober.
func (p *Prober) Subscribe(handler func(bool)) func() {
	return p.signal.Subscribe(handler)
}

// Run probes until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe performs one check and updates the signal.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	online := err == nil
	if p.signal.SetOnline(online) {
		ev := p.logger.Info()
		if err != nil {
			ev = p.logger.Warn().Err(err)
		}
		ev.Bool("online", online).Str("target", p.target).Msg("connectivity changed")
	}
	return online
}

func (p *Prober) probe(ctx context.Context) error {
	u, err := url.Parse(p.target)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.target, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("probe status %d", resp.StatusCode)
		}
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.target)
	if err != nil {
		return err
	}
	return conn.Close()
}
