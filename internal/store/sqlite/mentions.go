package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/listenupapp/webmention-receiver/internal/domain"
	"github.com/listenupapp/webmention-receiver/internal/store"
)

const mentionColumns = `id, domain, source, target, date_added, date_updated`

// UpsertMention inserts the triple or, when it already exists, advances its
// date_updated. The UNIQUE(domain, source, target) index makes this a single
// atomic statement; the row was created iff the returned id is newID.
func (s *Store) UpsertMention(ctx context.Context, triple domain.Triple, newID string, now time.Time) (*domain.IngestResult, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	ms := toMillis(now)

	var id string
	err = conn.QueryRowContext(ctx, `
		INSERT INTO webmentions (id, domain, source, target, date_added, date_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (domain, source, target)
		DO UPDATE SET date_updated = MAX(webmentions.date_added, excluded.date_updated)
		RETURNING id`,
		newID, triple.Domain, triple.Source, triple.Target, ms, ms,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("upsert mention: %w", err)
	}

	created := id == newID
	if created {
		s.logger.Debug("inserted webmention", "id", id, "domain", triple.Domain)
	} else {
		s.logger.Debug("updated webmention", "id", id, "domain", triple.Domain)
	}

	return &domain.IngestResult{ID: id, Domain: triple.Domain, Created: created}, nil
}

// GetMention returns the mention with id inside mentionDomain.
func (s *Store) GetMention(ctx context.Context, mentionDomain, id string) (*domain.Mention, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	m, err := scanMention(conn.QueryRowContext(ctx,
		`SELECT `+mentionColumns+` FROM webmentions WHERE domain = ? AND id = ?`,
		mentionDomain, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mention: %w", err)
	}
	return m, nil
}

// ListMentions returns every mention of mentionDomain ordered by
// date_updated, then date_added, newest first; id breaks remaining ties.
func (s *Store) ListMentions(ctx context.Context, mentionDomain string) ([]*domain.Mention, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx,
		`SELECT `+mentionColumns+` FROM webmentions
		WHERE domain = ?
		ORDER BY date_updated DESC, date_added DESC, id`,
		mentionDomain,
	)
	if err != nil {
		return nil, fmt.Errorf("list mentions: %w", err)
	}
	defer rows.Close()

	mentions := []*domain.Mention{}
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		mentions = append(mentions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mentions: %w", err)
	}

	return mentions, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMention(sc scanner) (*domain.Mention, error) {
	var m domain.Mention
	var dateAdded, dateUpdated int64
	if err := sc.Scan(&m.ID, &m.Domain, &m.Source, &m.Target, &dateAdded, &dateUpdated); err != nil {
		return nil, err
	}
	m.DateAdded = fromMillis(dateAdded)
	m.DateUpdated = fromMillis(dateUpdated)
	return &m, nil
}
