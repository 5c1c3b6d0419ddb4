package state

import "context"

type Entry struct {
	Key   string
	Value string
}

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns up to limit entries whose key starts with prefix, newest
	// key first. limit <= 0 means no limit.
	List(ctx context.Context, prefix string, limit int) ([]Entry, error)
	Close() error
}
