package offline

import (
	"context"
	"fmt"
	"time"

	"kerigma/internal/events"
	"kerigma/internal/models"
)

// SyncPendingActions runs one pass over the actions queued right now. It is a
// no-op while offline, with an empty queue, or while another pass runs.
func (m *Manager) SyncPendingActions(ctx context.Context) models.SyncResult {
	snapshot, reason := m.beginPass(false)
	if reason != "" {
		return models.SyncResult{Skipped: true, Reason: reason}
	}
	return m.runPass(ctx, snapshot)
}

// maybeSync is the single auto-sync decision point. Every change to
// connectivity, queue size or the syncing flag funnels through it.
func (m *Manager) maybeSync() {
	snapshot, reason := m.beginPass(true)
	if reason != "" {
		return
	}

	go func() {
		defer m.wg.Done()
		m.runPass(m.ctx, snapshot)
	}()
}

// beginPass claims the syncing flag and snapshots the queue. The flag is
// set before any delivery starts.
func (m *Manager) beginPass(auto bool) ([]models.PendingAction, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return nil, models.SkipReasonClosed
	case !m.online:
		return nil, models.SkipReasonOffline
	case len(m.queue) == 0:
		return nil, models.SkipReasonEmpty
	case m.syncing:
		return nil, models.SkipReasonSyncing
	case auto && m.backoff != nil:
		return nil, models.SkipReasonBackoff
	}

	m.syncing = true
	if auto {
		// Counted under mu so Close's Wait covers every started pass.
		m.wg.Add(1)
	}
	snapshot := make([]models.PendingAction, len(m.queue))
	for i, a := range m.queue {
		snapshot[i] = a.Clone()
	}
	return snapshot, ""
}

func (m *Manager) runPass(ctx context.Context, snapshot []models.PendingAction) (res models.SyncResult) {
	start := time.Now()
	processed := make(map[string]struct{}, len(snapshot))

	m.logger.Debug().Int("actions", len(snapshot)).Msg("sync pass started")
	_ = m.bus.PublishJSON(events.EventSyncStarted, events.SyncEventPayload{Attempted: len(snapshot), At: start})

	// Whatever happens below, the pass is settled and the flag released.
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("sync pass aborted: %v", r)
		}
		m.completePass(processed, snapshot, &res, time.Since(start))
	}()

	for _, action := range snapshot {
		if err := m.deliver(ctx, action); err != nil {
			res.Failed++
			m.observer.ActionFailed(action.Type)
			m.logger.Warn().Err(err).
				Str("action_id", action.ID).
				Str("action_type", action.Type).
				Msg("action delivery failed, kept for retry")
			continue
		}
		processed[action.ID] = struct{}{}
		res.Synced++
		m.observer.ActionSynced(action.Type)
	}
	return res
}

func (m *Manager) deliver(ctx context.Context, action models.PendingAction) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.deliverer.Deliver(ctx, action)
}

// completePass removes processed actions from the current queue, which may
// have grown during the pass, and persists the survivors in order.
func (m *Manager) completePass(processed map[string]struct{}, snapshot []models.PendingAction, res *models.SyncResult, took time.Duration) {
	if res.Err != nil {
		// Actions after the abort point were never attempted.
		res.Failed = len(snapshot) - res.Synced
	}

	m.mu.Lock()
	remaining := m.queue
	if len(processed) > 0 {
		remaining = make([]models.PendingAction, 0, len(m.queue))
		for _, a := range m.queue {
			if _, done := processed[a.ID]; !done {
				remaining = append(remaining, a)
			}
		}
		if err := m.persistLocked(context.Background(), remaining); err != nil {
			// Delivered actions are dropped from memory regardless; the next
			// successful write brings storage back in line.
			m.logger.Error().Err(err).Msg("persist queue after sync")
			m.reporter.Report(err, map[string]string{"stage": "persist-after-sync"})
		}
		m.queue = remaining
	}
	m.syncing = false

	if res.Failed > 0 || res.Err != nil {
		m.failedPasses++
		m.scheduleRetryLocked()
	} else {
		m.failedPasses = 0
	}
	size := len(remaining)
	m.mu.Unlock()

	outcome := OutcomeSuccess
	switch {
	case res.Err != nil:
		outcome = OutcomeError
	case res.Failed > 0:
		outcome = OutcomePartial
	}
	m.observer.QueueSize(size)
	m.observer.PassFinished(outcome, took)

	payload := events.SyncEventPayload{
		Attempted: len(snapshot),
		Synced:    res.Synced,
		Failed:    res.Failed,
		Remaining: size,
		At:        time.Now(),
	}

	if res.Err != nil {
		payload.Error = res.Err.Error()
		m.logger.Error().Err(res.Err).Int("synced", res.Synced).Msg("sync pass failed")
		m.reporter.Report(res.Err, map[string]string{"stage": "sync-pass"})
		_ = m.bus.PublishJSON(events.EventSyncFailed, payload)
		m.notifier.Notify(msgSyncFailed)
	} else {
		m.logger.Info().
			Int("synced", res.Synced).
			Int("failed", res.Failed).
			Int("remaining", size).
			Dur("took", took).
			Msg("sync pass finished")
		_ = m.bus.PublishJSON(events.EventSyncCompleted, payload)
	}

	if res.Synced > 0 {
		m.notifier.Notify(msgSyncCompleted(res.Synced))
	}

	m.maybeSync()
}

// scheduleRetryLocked suppresses auto-sync until the backoff delay elapses.
// Callers hold mu.
func (m *Manager) scheduleRetryLocked() {
	if m.closed {
		return
	}
	if m.backoff != nil {
		m.backoff.Stop()
	}
	delay := m.retry.NextDelay(m.failedPasses)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.backoff != timer {
			m.mu.Unlock()
			return
		}
		m.backoff = nil
		m.mu.Unlock()
		m.maybeSync()
	})
	m.backoff = timer
	m.logger.Debug().Dur("delay", delay).Int("failed_passes", m.failedPasses).Msg("auto-sync backoff")
}

// resetBackoffLocked lifts any backoff. Callers hold mu.
func (m *Manager) resetBackoffLocked() {
	if m.backoff != nil {
		m.backoff.Stop()
		m.backoff = nil
	}
	m.failedPasses = 0
}
