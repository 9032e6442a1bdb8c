// Package render produces the public HTML pages and Atom feeds.
package render

import (
	"bytes"
	"embed"
	"encoding/xml"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"mime"
	"path"
	"time"

	"github.com/listenupapp/webmention-receiver/internal/domain"
)

//go:embed templates/*.html templates/robots.txt
var templates embed.FS

//go:embed assets
var assets embed.FS

// ErrAssetNotFound is returned by Asset for unknown names.
var ErrAssetNotFound = errors.New("asset not found")

var pages = []string{"index.html", "domain.html", "mention.html"}

// Renderer holds the parsed page templates.
type Renderer struct {
	externalURL string
	pages       map[string]*template.Template
	robots      []byte
}

// New parses every embedded template. externalURL prefixes all links.
func New(externalURL string) (*Renderer, error) {
	funcs := template.FuncMap{
		"formatTime": formatTime,
	}

	r := &Renderer{
		externalURL: externalURL,
		pages:       make(map[string]*template.Template, len(pages)),
	}

	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templates, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		r.pages[page] = tmpl
	}

	robots, err := templates.ReadFile("templates/robots.txt")
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	r.robots = robots

	return r, nil
}

// Robots returns the robots.txt body.
func (r *Renderer) Robots() []byte {
	return r.robots
}

// Asset returns a static file from the embedded assets directory and its
// content type.
func (r *Renderer) Asset(name string) ([]byte, string, error) {
	if !fs.ValidPath(name) {
		return nil, "", ErrAssetNotFound
	}
	data, err := assets.ReadFile(path.Join("assets", name))
	if err != nil {
		return nil, "", ErrAssetNotFound
	}
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

type indexData struct {
	ExternalURL string
}

type domainData struct {
	ExternalURL string
	Domain      string
	Mentions    []*domain.Mention
	LastUpdated time.Time
}

type mentionData struct {
	ExternalURL string
	Mention     *domain.Mention
}

// Index renders the landing page.
func (r *Renderer) Index() ([]byte, error) {
	return r.execute("index.html", indexData{ExternalURL: r.externalURL})
}

// Domain renders the mention list of one domain.
func (r *Renderer) Domain(mentionDomain string, mentions []*domain.Mention) ([]byte, error) {
	return r.execute("domain.html", domainData{
		ExternalURL: r.externalURL,
		Domain:      mentionDomain,
		Mentions:    mentions,
		LastUpdated: domain.LastUpdated(mentions),
	})
}

// Mention renders a single mention.
func (r *Renderer) Mention(m *domain.Mention) ([]byte, error) {
	return r.execute("mention.html", mentionData{ExternalURL: r.externalURL, Mention: m})
}

// execute renders into a buffer so a failure never leaves a half-written page.
func (r *Renderer) execute(page string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		return nil, fmt.Errorf("render %s: %w", page, err)
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 MST")
}

// Atom document types.
type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Author  atomAuthor  `xml:"author"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	ID        string     `xml:"id"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
}

// Feed renders the Atom feed of one domain. The feed's updated time is the
// latest DateUpdated, or the unix epoch for an empty feed.
func (r *Renderer) Feed(mentionDomain string, mentions []*domain.Mention) ([]byte, error) {
	base := r.externalURL + "/" + mentionDomain

	feed := atomFeed{
		Title:   "Webmentions for " + mentionDomain,
		ID:      base,
		Updated: atomTime(domain.LastUpdated(mentions)),
		Links: []atomLink{
			{Href: base + "/feed.xml", Rel: "self", Type: "application/atom+xml"},
			{Href: base, Rel: "alternate", Type: "text/html"},
		},
		Author:  atomAuthor{Name: mentionDomain},
		Entries: make([]atomEntry, 0, len(mentions)),
	}

	for _, m := range mentions {
		feed.Entries = append(feed.Entries, atomEntry{
			Title:     m.Source,
			ID:        "urn:uuid:" + m.ID,
			Published: atomTime(m.DateAdded),
			Updated:   atomTime(m.DateUpdated),
			Links: []atomLink{
				{Href: base + "/mention/" + m.ID, Rel: "alternate", Type: "text/html"},
				{Href: m.Source, Rel: "related"},
			},
			Summary: m.Source + " mentioned " + m.Target,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return nil, fmt.Errorf("render feed: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func atomTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
