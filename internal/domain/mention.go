// Package domain contains the entities persisted by the webmention receiver.
package domain

import "time"

// Mention is a single webmention claim: Source says it references Target.
// At most one Mention exists per (Domain, Source, Target).
type Mention struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	DateAdded   time.Time `json:"date_added"`
	DateUpdated time.Time `json:"date_updated"`
}

// Triple identifies a mention claim independently of its generated ID.
type Triple struct {
	Domain string
	Source string
	Target string
}

// IngestResult is what the ingestion engine hands back to the transport.
type IngestResult struct {
	ID      string
	Domain  string
	Created bool // false when an existing triple was re-notified
}

// LastUpdated returns the most recent DateUpdated in mentions, or the unix
// epoch when there are none.
func LastUpdated(mentions []*Mention) time.Time {
	last := time.UnixMilli(0).UTC()
	for _, m := range mentions {
		if m.DateUpdated.After(last) {
			last = m.DateUpdated
		}
	}
	return last
}
