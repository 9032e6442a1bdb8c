package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/listenupapp/webmention-receiver/internal/http/response"
	"github.com/listenupapp/webmention-receiver/internal/render"
	"github.com/listenupapp/webmention-receiver/internal/service"
)

// maxFormBytes bounds the receiver's request body.
const maxFormBytes = 64 << 10

const formContentType = "application/x-www-form-urlencoded"

// handleIndex serves the landing page.
// GET /
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := s.renderer.Index()
	if err != nil {
		s.logger.Error("failed to render index", "error", err)
		response.InternalError(w, s.logger)
		return
	}
	response.HTML(w, http.StatusOK, page, s.logger)
}

// handleRobots serves robots.txt.
// GET /robots.txt
func (s *Server) handleRobots(w http.ResponseWriter, _ *http.Request) {
	response.Text(w, http.StatusOK, string(s.renderer.Robots()), s.logger)
}

// handleAsset serves the embedded stylesheet and other static files.
// GET /assets/*
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.renderer.Asset(chi.URLParam(r, "*"))
	if errors.Is(err, render.ErrAssetNotFound) {
		response.NotFound(w, s.logger)
		return
	}
	if err != nil {
		s.logger.Error("failed to read asset", "path", r.URL.Path, "error", err)
		response.InternalError(w, s.logger)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write asset", "error", err)
	}
}

// handleDomain lists the mentions of one domain.
// GET /{domain}
func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	host, err := s.mentions.NormalizeDomain(chi.URLParam(r, "domain"))
	if err != nil {
		response.NotFound(w, s.logger)
		return
	}

	mentions, err := s.mentions.ListMentions(r.Context(), host)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	page, err := s.renderer.Domain(host, mentions)
	if err != nil {
		s.logger.Error("failed to render domain page", "domain", host, "error", err)
		response.InternalError(w, s.logger)
		return
	}
	response.HTML(w, http.StatusOK, page, s.logger)
}

// handleFeed serves the Atom feed of one domain.
// GET /{domain}/feed.xml
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	host, err := s.mentions.NormalizeDomain(chi.URLParam(r, "domain"))
	if err != nil {
		response.NotFound(w, s.logger)
		return
	}

	mentions, err := s.mentions.ListMentions(r.Context(), host)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	feed, err := s.renderer.Feed(host, mentions)
	if err != nil {
		s.logger.Error("failed to render feed", "domain", host, "error", err)
		response.InternalError(w, s.logger)
		return
	}
	response.XML(w, http.StatusOK, feed, s.logger)
}

// handleMention serves the page of a single mention.
// GET /{domain}/mention/{id}
func (s *Server) handleMention(w http.ResponseWriter, r *http.Request) {
	m, err := s.mentions.GetMention(r.Context(), chi.URLParam(r, "domain"), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	page, err := s.renderer.Mention(m)
	if err != nil {
		s.logger.Error("failed to render mention", "id", m.ID, "error", err)
		response.InternalError(w, s.logger)
		return
	}
	response.HTML(w, http.StatusOK, page, s.logger)
}

// handleReceive accepts a webmention. Only form-encoded bodies are read.
// POST /{domain}/receiver
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != formContentType {
		response.BadRequest(w, "Content-Type must be "+formContentType, s.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		response.BadRequest(w, "malformed form body", s.logger)
		return
	}

	sub := service.Submission{
		Source: r.PostForm.Get("source"),
		Target: r.PostForm.Get("target"),
	}

	res, err := s.mentions.Ingest(r.Context(), chi.URLParam(r, "domain"), sub)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, s.mentions.MentionURL(res.Domain, res.ID), s.logger)
}
