// Package offline implements the offline action queue: actions are persisted
// locally and delivered once connectivity allows it.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kerigma/internal/connectivity"
	"kerigma/internal/delivery"
	"kerigma/internal/events"
	"kerigma/internal/logging"
	"kerigma/internal/models"
	"kerigma/internal/notify"
	"kerigma/internal/queue"
	"kerigma/internal/reporting"
	"kerigma/internal/storage"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("offline manager is closed")

// Options tunes a Manager. Zero values fall back to package defaults.
type Options struct {
	StorageKey      string
	DeliveryTimeout time.Duration
	// Retry spaces out automatic passes after a pass that left failures.
	Retry    delivery.RetryPolicy
	Logger   *zerolog.Logger
	Reporter reporting.Reporter
	Observer Observer
	Bus      *events.EventBus
	Now      func() time.Time
}

// Manager owns the pending action queue, the connectivity flag and the sync
// mutex. All queue writes are persisted as a full replacement under mu, so
// the stored value always matches the in-memory queue.
type Manager struct {
	store     storage.Store
	conn      connectivity.Source
	notifier  notify.Notifier
	deliverer delivery.Deliverer

	key      string
	timeout  time.Duration
	retry    delivery.RetryPolicy
	logger   zerolog.Logger
	reporter reporting.Reporter
	observer Observer
	bus      *events.EventBus
	now      func() time.Time

	mu           sync.Mutex
	online       bool
	queue        []models.PendingAction
	syncing      bool
	closed       bool
	failedPasses int
	backoff      *time.Timer

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New rehydrates the queue from store, subscribes to connectivity changes and
// starts a pass right away when the auto-sync condition already holds.
func New(
	ctx context.Context,
	store storage.Store,
	conn connectivity.Source,
	notifier notify.Notifier,
	deliverer delivery.Deliverer,
	opts Options,
) (*Manager, error) {
	if store == nil || conn == nil || deliverer == nil {
		return nil, errors.New("store, connectivity and deliverer are required")
	}

	m := &Manager{
		store:     store,
		conn:      conn,
		notifier:  notify.Safe(notifier),
		deliverer: deliverer,
		key:       opts.StorageKey,
		timeout:   opts.DeliveryTimeout,
		retry:     opts.Retry,
		logger:    logging.Component(opts.Logger, "offline-sync"),
		reporter:  opts.Reporter,
		observer:  opts.Observer,
		bus:       opts.Bus,
		now:       opts.Now,
	}
	if m.key == "" {
		m.key = models.DefaultStorageKey
	}
	if m.timeout <= 0 {
		m.timeout = models.DefaultDeliveryTimeout
	}
	if m.reporter == nil {
		m.reporter = reporting.Nop
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.now == nil {
		m.now = time.Now
	}

	actions, err := m.rehydrate(ctx)
	if err != nil {
		return nil, err
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.mu.Lock()
	m.queue = actions
	m.unsubscribe = conn.Subscribe(m.handleConnectivity)
	m.online = conn.Online()
	online := m.online
	m.mu.Unlock()

	m.observer.QueueSize(len(actions))
	m.logger.Info().Bool("online", online).Int("pending", len(actions)).Msg("offline manager started")

	m.maybeSync()
	return m, nil
}

// rehydrate loads the persisted queue. Unparseable data yields an empty
// queue and unreadable legacy entries are skipped; in both cases the raw
// value is kept under "<key>:corrupt" for inspection.
func (m *Manager) rehydrate(ctx context.Context) ([]models.PendingAction, error) {
	raw, ok, err := m.store.Load(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("load pending actions: %w", err)
	}
	if !ok {
		return nil, nil
	}

	actions, dropped, err := queue.Decode(raw)
	if err != nil {
		m.logger.Error().Err(err).Str("key", m.key).Msg("discarding unreadable pending actions")
		m.reporter.Report(err, map[string]string{"stage": "rehydrate", "key": m.key})
		m.keepCorrupt(ctx, raw)
		return nil, nil
	}

	if len(dropped) > 0 {
		for _, d := range dropped {
			m.logger.Warn().Int("index", d.Index).Str("reason", d.Reason).RawJSON("entry", d.Raw).Msg("skipping unreadable pending action")
		}
		err := fmt.Errorf("%w: skipped %d of %d entries", queue.ErrCorrupt, len(dropped), len(dropped)+len(actions))
		m.reporter.Report(err, map[string]string{"stage": "rehydrate", "key": m.key})
		m.keepCorrupt(ctx, raw)
	}

	// Legacy values and reassigned ids are written back in the current format
	// so that storage matches the queue handed to callers.
	if normalized, err := queue.Encode(actions); err == nil && normalized != raw {
		m.mu.Lock()
		err = m.persistLocked(ctx, actions)
		m.mu.Unlock()
		if err != nil {
			m.logger.Warn().Err(err).Msg("rewrite pending actions in current format")
		}
	}
	return actions, nil
}

func (m *Manager) keepCorrupt(ctx context.Context, raw string) {
	if err := m.store.Save(ctx, m.key+":corrupt", raw); err != nil {
		m.logger.Warn().Err(err).Msg("keep corrupt pending actions copy")
	}
}

// persistLocked writes the full queue. Callers hold mu.
func (m *Manager) persistLocked(ctx context.Context, actions []models.PendingAction) error {
	raw, err := queue.Encode(actions)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, m.key, raw); err != nil {
		return fmt.Errorf("persist pending actions: %w", err)
	}
	return nil
}

// Enqueue records an action durably. The action is only part of the queue
// once it has been persisted; on error nothing changes.
func (m *Manager) Enqueue(ctx context.Context, actionType string, payload any) (models.PendingAction, error) {
	action, err := models.NewPendingAction(actionType, payload, m.now())
	if err != nil {
		return models.PendingAction{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.PendingAction{}, ErrClosed
	}
	next := make([]models.PendingAction, 0, len(m.queue)+1)
	next = append(next, m.queue...)
	next = append(next, action)
	if err := m.persistLocked(ctx, next); err != nil {
		m.mu.Unlock()
		return models.PendingAction{}, err
	}
	m.queue = next
	online := m.online
	m.mu.Unlock()

	m.observer.QueueSize(len(next))
	m.logger.Debug().Str("action_id", action.ID).Str("action_type", action.Type).Bool("online", online).Msg("action enqueued")
	_ = m.bus.PublishJSON(events.EventActionEnqueued, events.ActionEventPayload{
		ActionID:   action.ID,
		ActionType: action.Type,
		Online:     online,
		QueueSize:  len(next),
	})

	if !online {
		m.notifier.Notify(msgSavedOffline)
	}

	m.maybeSync()
	return action.Clone(), nil
}

// ClearPendingActions drops every queued action from memory and storage.
func (m *Manager) ClearPendingActions(ctx context.Context) error {
	m.mu.Lock()
	if err := m.store.Remove(ctx, m.key); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("clear pending actions: %w", err)
	}
	dropped := len(m.queue)
	m.queue = nil
	m.resetBackoffLocked()
	m.mu.Unlock()

	m.observer.QueueSize(0)
	m.logger.Info().Int("dropped", dropped).Msg("pending actions cleared")
	_ = m.bus.PublishJSON(events.EventQueueCleared, map[string]int{"dropped": dropped})
	return nil
}

func (m *Manager) handleConnectivity(online bool) {
	m.mu.Lock()
	if m.closed || m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	if online {
		// A fresh connection gets an immediate attempt.
		m.resetBackoffLocked()
	}
	m.mu.Unlock()

	m.logger.Info().Bool("online", online).Msg("connectivity changed")
	_ = m.bus.PublishJSON(events.EventConnectivityChanged, events.ConnectivityEventPayload{Online: online})

	if online {
		m.notifier.Notify(msgConnectionRestored)
	} else {
		m.notifier.Notify(msgConnectionLost)
	}

	m.maybeSync()
}

// Pending returns a copy of the queue in FIFO order.
func (m *Manager) Pending() []models.PendingAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PendingAction, len(m.queue))
	for i, a := range m.queue {
		out[i] = a.Clone()
	}
	return out
}

// HasPending reports whether any action is waiting for delivery.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) > 0
}

// IsOnline reports the last connectivity state the manager observed.
func (m *Manager) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// IsSyncing reports whether a sync pass is running.
func (m *Manager) IsSyncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncing
}

// Wait blocks until automatically started passes have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops reacting to connectivity, cancels in-flight deliveries and
// waits for running passes. Cancelled actions stay queued.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.resetBackoffLocked()
	m.mu.Unlock()

	m.unsubscribe()
	m.cancel()
	m.wg.Wait()
	return nil
}
