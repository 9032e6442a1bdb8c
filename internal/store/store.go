// Package store defines the persistence interface for webmentions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/listenupapp/webmention-receiver/internal/domain"
)

// ErrNotFound is returned when a mention does not exist in the given domain.
var ErrNotFound = errors.New("mention not found")

// Store is implemented by sqlite.Store.
type Store interface {
	// UpsertMention records triple, creating it with newID and now if absent
	// or refreshing its DateUpdated otherwise. It is a single atomic step.
	UpsertMention(ctx context.Context, triple domain.Triple, newID string, now time.Time) (*domain.IngestResult, error)

	// GetMention returns the mention with id inside mentionDomain.
	GetMention(ctx context.Context, mentionDomain, id string) (*domain.Mention, error)

	// ListMentions returns every mention of mentionDomain, most recently
	// updated first. The result is never nil.
	ListMentions(ctx context.Context, mentionDomain string) ([]*domain.Mention, error)

	// Ping checks the database is reachable.
	Ping(ctx context.Context) error

	// SchemaVersion reports PRAGMA user_version.
	SchemaVersion(ctx context.Context) (int, error)

	Close() error
}
