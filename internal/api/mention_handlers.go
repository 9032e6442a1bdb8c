package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/webmention-receiver/internal/domain"
)

func (s *Server) registerMentionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listMentions",
		Method:      http.MethodGet,
		Path:        "/api/v1/domains/{domain}/mentions",
		Summary:     "List mentions",
		Description: "Returns every mention of a domain, most recently updated first",
		Tags:        []string{"Mentions"},
	}, s.handleListMentions)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMention",
		Method:      http.MethodGet,
		Path:        "/api/v1/domains/{domain}/mentions/{id}",
		Summary:     "Get mention",
		Description: "Returns a single mention of a domain",
		Tags:        []string{"Mentions"},
	}, s.handleGetMention)
}

// MentionResponse is the JSON form of a mention.
type MentionResponse struct {
	ID          string    `json:"id" doc:"Mention ID (UUID)"`
	Domain      string    `json:"domain" doc:"Normalized target host"`
	Source      string    `json:"source" doc:"URL of the page that mentions the target"`
	Target      string    `json:"target" doc:"URL of the mentioned page"`
	URL         string    `json:"url" doc:"Public page of this mention"`
	DateAdded   time.Time `json:"date_added" doc:"First notification"`
	DateUpdated time.Time `json:"date_updated" doc:"Most recent notification"`
}

// ListMentionsInput contains parameters for listing mentions.
type ListMentionsInput struct {
	Domain string `path:"domain" doc:"Domain whose mentions are listed"`
}

// MentionListResponse contains the mentions of one domain.
type MentionListResponse struct {
	Domain      string            `json:"domain" doc:"Normalized domain"`
	LastUpdated time.Time         `json:"last_updated" doc:"Latest date_updated, unix epoch when empty"`
	Mentions    []MentionResponse `json:"mentions" doc:"Mentions, most recently updated first"`
}

// ListMentionsOutput wraps the list response for Huma.
type ListMentionsOutput struct {
	Body MentionListResponse
}

// GetMentionInput contains parameters for getting one mention.
type GetMentionInput struct {
	Domain string `path:"domain" doc:"Domain the mention belongs to"`
	ID     string `path:"id" doc:"Mention ID"`
}

// MentionOutput wraps a mention for Huma.
type MentionOutput struct {
	Body MentionResponse
}

func (s *Server) handleListMentions(ctx context.Context, input *ListMentionsInput) (*ListMentionsOutput, error) {
	host, err := s.mentions.NormalizeDomain(input.Domain)
	if err != nil {
		return nil, err
	}

	mentions, err := s.mentions.ListMentions(ctx, host)
	if err != nil {
		return nil, s.apiError(err, "failed to list mentions", "domain", host)
	}

	resp := MentionListResponse{
		Domain:      host,
		LastUpdated: domain.LastUpdated(mentions),
		Mentions:    make([]MentionResponse, 0, len(mentions)),
	}
	for _, m := range mentions {
		resp.Mentions = append(resp.Mentions, s.toMentionResponse(m))
	}

	return &ListMentionsOutput{Body: resp}, nil
}

func (s *Server) handleGetMention(ctx context.Context, input *GetMentionInput) (*MentionOutput, error) {
	m, err := s.mentions.GetMention(ctx, input.Domain, input.ID)
	if err != nil {
		return nil, s.apiError(err, "failed to get mention", "domain", input.Domain, "id", input.ID)
	}
	return &MentionOutput{Body: s.toMentionResponse(m)}, nil
}

func (s *Server) toMentionResponse(m *domain.Mention) MentionResponse {
	return MentionResponse{
		ID:          m.ID,
		Domain:      m.Domain,
		Source:      m.Source,
		Target:      m.Target,
		URL:         s.mentions.MentionURL(m.Domain, m.ID),
		DateAdded:   m.DateAdded,
		DateUpdated: m.DateUpdated,
	}
}
