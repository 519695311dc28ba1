// Package notify delivers user-facing notifications. Every notifier is
// fire-and-forget: callers never wait on delivery and never see its errors.
package notify

import (
	"kerigma/internal/events"
	"kerigma/internal/models"

	"github.com/rs/zerolog"
)

type Notifier interface {
	Notify(n models.Notification)
}

// Func adapts a function to Notifier.
type Func func(models.Notification)

func (f Func) Notify(n models.Notification) { f(n) }

// Nop drops everything.
var Nop Notifier = Func(func(models.Notification) {})

type safe struct {
	next Notifier
}

// Safe shields callers from panics raised by n.
func Safe(n Notifier) Notifier {
	if n == nil {
		return Nop
	}
	if _, ok := n.(safe); ok {
		return n
	}
	return safe{next: n}
}

func (s safe) Notify(n models.Notification) {
	defer func() { _ = recover() }()
	s.next.Notify(n)
}

// Multi fans out to every notifier; one failing sink does not affect others.
type Multi []Notifier

func (m Multi) Notify(n models.Notification) {
	for _, next := range m {
		Safe(next).Notify(n)
	}
}

type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "notifications").Logger()
	}
	return &LogNotifier{logger: l}
}

func (l *LogNotifier) Notify(n models.Notification) {
	ev := l.logger.Info()
	if n.Severity == models.SeverityDestructive {
		ev = l.logger.Warn()
	}
	ev.Str("title", n.Title).Str("severity", string(n.Severity)).Msg(n.Description)
}

// BusNotifier republishes notifications as events so in-process consumers
// (e.g. a UI bridge) can render them.
type BusNotifier struct {
	bus *events.EventBus
}

func NewBusNotifier(bus *events.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

func (b *BusNotifier) Notify(n models.Notification) {
	_ = b.bus.PublishJSON(events.EventNotification, n)
}
