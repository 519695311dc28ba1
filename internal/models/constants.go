package models

import "time"

const (
	DefaultStorageKey      = "kerigma-offline-actions"
	DefaultDeliveryTimeout = 30 * time.Second

	SkipReasonOffline = "offline"
	SkipReasonEmpty   = "empty"
	SkipReasonSyncing = "syncing"
	SkipReasonClosed  = "closed"
	SkipReasonBackoff = "backoff"
)
