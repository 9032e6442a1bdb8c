// Package service holds the receiver's business logic between transport and store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/domain"
	domainerrors "github.com/listenupapp/webmention-receiver/internal/errors"
	"github.com/listenupapp/webmention-receiver/internal/id"
	"github.com/listenupapp/webmention-receiver/internal/metrics"
	"github.com/listenupapp/webmention-receiver/internal/normalize"
	"github.com/listenupapp/webmention-receiver/internal/store"
	"github.com/listenupapp/webmention-receiver/internal/validation"
)

// Submission is the form body of a webmention.
type Submission struct {
	Source string `form:"source" validate:"required,url"`
	Target string `form:"target" validate:"required,url"`
}

// MentionService records webmentions and serves them back per domain.
type MentionService struct {
	store       store.Store
	validator   *validation.Validator
	metrics     *metrics.Metrics
	externalURL string
	allowed     []string // nil: every domain accepted
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewMentionService creates a mention service. Allow-list entries are
// normalized the same way as incoming domains.
func NewMentionService(st store.Store, v *validation.Validator, m *metrics.Metrics, cfg config.ReceiverConfig, logger *slog.Logger) (*MentionService, error) {
	var allowed []string
	if cfg.AllowedDomains != nil {
		hosts, err := normalize.Hosts(cfg.AllowedDomains)
		if err != nil {
			return nil, err
		}
		allowed = hosts
	}

	return &MentionService{
		store:       st,
		validator:   v,
		metrics:     m,
		externalURL: cfg.ExternalURL,
		allowed:     allowed,
		logger:      logger,
		now:         time.Now,
		newID:       id.NewMention,
	}, nil
}

// Ingest validates a submission for routeDomain and records it. Submitting an
// existing (domain, source, target) again only refreshes its DateUpdated.
func (s *MentionService) Ingest(ctx context.Context, routeDomain string, sub Submission) (*domain.IngestResult, error) {
	res, err := s.ingest(ctx, routeDomain, sub)
	s.metrics.Ingest.WithLabelValues(outcome(res, err)).Inc()
	return res, err
}

func (s *MentionService) ingest(ctx context.Context, routeDomain string, sub Submission) (*domain.IngestResult, error) {
	host, hostErr := normalize.Host(routeDomain)

	// 1. Allow-list.
	if s.allowed != nil && (hostErr != nil || !slices.Contains(s.allowed, host)) {
		s.logger.Info("rejected webmention for domain not on allow-list", "domain", routeDomain)
		return nil, domainerrors.Forbidden("The specified target domain is not allowed to use this server")
	}
	if hostErr != nil {
		return nil, domainerrors.Validationf("invalid domain %q", routeDomain)
	}

	// 2. Well-formed absolute web URLs, compared and stored in canonical form.
	if err := s.validator.Validate(sub); err != nil {
		return nil, err
	}
	source, err := normalize.WebURL(sub.Source)
	if err != nil {
		return nil, domainerrors.ValidationWithDetails("source must be an absolute http or https URL",
			map[string]string{"source": err.Error()})
	}
	target, err := normalize.WebURL(sub.Target)
	if err != nil {
		return nil, domainerrors.ValidationWithDetails("target must be an absolute http or https URL",
			map[string]string{"target": err.Error()})
	}

	// 3. No self-references.
	if source.String() == target.String() {
		return nil, domainerrors.Validation("Source and target must be different")
	}

	// 4. The target must live on the domain the mention is sent to.
	targetHost, err := normalize.Host(target.Hostname())
	if err != nil || targetHost != host {
		return nil, domainerrors.Validation("Invalid target domain")
	}

	triple := domain.Triple{Domain: host, Source: source.String(), Target: target.String()}
	res, err := s.store.UpsertMention(ctx, triple, s.newID(), s.now())
	if err != nil {
		s.logger.Error("failed to record webmention", "domain", host, "error", err)
		return nil, domainerrors.Internal(err, "failed to record webmention")
	}

	if res.Created {
		s.logger.Info("inserted new webmention", "id", res.ID, "domain", host)
	} else {
		s.logger.Info("updated existing webmention", "id", res.ID, "domain", host)
	}

	return res, nil
}

// GetMention returns one mention of mentionDomain. rawID must be a UUID.
func (s *MentionService) GetMention(ctx context.Context, mentionDomain, rawID string) (*domain.Mention, error) {
	host, err := normalize.Host(mentionDomain)
	if err != nil {
		return nil, domainerrors.NotFoundf("no mentions for %q", mentionDomain)
	}

	mentionID, err := id.ParseMention(rawID)
	if err != nil {
		return nil, domainerrors.Validation("invalid mention id")
	}

	m, err := s.store.GetMention(ctx, host, mentionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFound("mention not found")
	}
	if err != nil {
		return nil, domainerrors.Internal(err, "failed to load mention")
	}
	return m, nil
}

// ListMentions returns all mentions of mentionDomain, most recently updated
// first. The slice is empty, not nil, when there are none.
func (s *MentionService) ListMentions(ctx context.Context, mentionDomain string) ([]*domain.Mention, error) {
	host, err := normalize.Host(mentionDomain)
	if err != nil {
		return []*domain.Mention{}, nil
	}

	mentions, err := s.store.ListMentions(ctx, host)
	if err != nil {
		return nil, domainerrors.Internal(err, "failed to list mentions")
	}
	return mentions, nil
}

// NormalizeDomain exposes the canonical form used to partition mentions.
func (s *MentionService) NormalizeDomain(mentionDomain string) (string, error) {
	host, err := normalize.Host(mentionDomain)
	if err != nil {
		return "", domainerrors.Validationf("invalid domain %q", mentionDomain)
	}
	return host, nil
}

// MentionURL is the public page of a mention.
func (s *MentionService) MentionURL(mentionDomain, mentionID string) string {
	return s.externalURL + "/" + mentionDomain + "/mention/" + mentionID
}

// ExternalURL is the configured public base URL.
func (s *MentionService) ExternalURL() string {
	return s.externalURL
}

func outcome(res *domain.IngestResult, err error) string {
	switch {
	case err == nil && res.Created:
		return metrics.OutcomeCreated
	case err == nil:
		return metrics.OutcomeUpdated
	}
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeForbidden:
		return metrics.OutcomeForbidden
	case domainerrors.CodeValidation:
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
