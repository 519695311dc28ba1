// Package storage holds the key/value backends that keep the pending action
// queue durable across restarts. Every write is a full value replacement.
package storage

import "context"

// Store is the persistence collaborator of the offline manager.
// Load reports ok=false when the key is absent.
type Store interface {
	Load(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
