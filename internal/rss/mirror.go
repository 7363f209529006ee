// Package rss republishes upstream RSS, Atom and JSON feeds as Atom.
package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/bryan-buckman/infovore/internal/atom"
	"github.com/bryan-buckman/infovore/internal/feedworker"
	"github.com/bryan-buckman/infovore/internal/model"
)

// Prefix is the default source prefix.
const Prefix = "rss"

// DefaultMaxItems caps the entries of a mirrored feed when no limit is configured.
const DefaultMaxItems = 50

// Params is the canonical query of the mirror resource.
type Params struct {
	URL   string `json:"url"`
	Limit int    `json:"limit,omitempty"`
}

// Mirror fetches a feed with gofeed and re-emits it as Atom.
type Mirror struct {
	parser        *gofeed.Parser
	maxItems      int
	allowedHosts  []string
	domainLimiter *domainLimiter
}

var _ feedworker.Generator = (*Mirror)(nil)

// NewMirror creates the generator. client may be nil; pass a GuardedClient
// when the server is reachable by untrusted clients.
func NewMirror(maxItems int, userAgent string, client *http.Client) *Mirror {
	if maxItems < 1 {
		maxItems = DefaultMaxItems
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	if client != nil {
		parser.Client = client
	}
	return &Mirror{
		parser:        parser,
		maxItems:      maxItems,
		domainLimiter: newDomainLimiter(DelayBetweenDomainRequests),
	}
}

// AllowHosts restricts the mirrored URLs to the listed hosts. Entries
// starting with "." also match every subdomain. No entries allows any host.
func (m *Mirror) AllowHosts(hosts ...string) *Mirror {
	m.allowedHosts = hosts
	return m
}

func (m *Mirror) ResourcePath() string { return "mirror" }

// Normalize accepts url (required, absolute http or https) and limit
// (1..maxItems). Scheme and host are lower-cased and the fragment dropped,
// so trivially different spellings of one feed share a cache entry.
func (m *Mirror) Normalize(rawQuery string) (model.CanonicalKey, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, feedworker.NewParseError(rawQuery, err)
	}

	raw := strings.TrimSpace(values.Get("url"))
	if raw == "" {
		return nil, feedworker.NewParseError(rawQuery, errors.New("url is required"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, feedworker.NewParseError(rawQuery, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, feedworker.NewParseError(rawQuery, fmt.Errorf("unsupported url scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, feedworker.NewParseError(rawQuery, errors.New("url must be absolute"))
	}
	u.Host = strings.ToLower(u.Host)
	if !hostAllowed(u.Hostname(), m.allowedHosts) {
		return nil, feedworker.NewParseError(rawQuery, fmt.Errorf("host %q is not allowed", u.Hostname()))
	}
	u.Fragment = ""
	u.RawFragment = ""

	p := Params{URL: u.String()}
	if rawLimit := values.Get("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil {
			return nil, feedworker.NewParseError(rawQuery, fmt.Errorf("limit: %w", err))
		}
		if limit < 1 || limit > m.maxItems {
			return nil, feedworker.NewParseError(rawQuery, fmt.Errorf("limit must be between 1 and %d", m.maxItems))
		}
		// The default limit and an explicit maxItems are the same request.
		if limit != m.maxItems {
			p.Limit = limit
		}
	}
	return model.NewCanonicalKey(p)
}

// Generate fetches and converts the upstream feed.
func (m *Mirror) Generate(ctx context.Context, key model.CanonicalKey) (*atom.Feed, error) {
	var p Params
	if err := key.Decode(&p); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit < 1 || limit > m.maxItems {
		limit = m.maxItems
	}

	// Apply per-domain rate limiting
	domain := extractDomain(p.URL)
	if err := m.domainLimiter.acquire(ctx, domain); err != nil {
		return nil, fmt.Errorf("rate limit cancelled for %s: %w", p.URL, err)
	}
	defer m.domainLimiter.release(domain)

	parsed, err := m.parser.ParseURLWithContext(p.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", p.URL, err)
	}
	return convert(p.URL, parsed, limit), nil
}

func convert(sourceURL string, src *gofeed.Feed, limit int) *atom.Feed {
	f := &atom.Feed{
		ID:    sourceURL,
		Title: atom.PlainText(src.Title),
		Links: []atom.Link{{Href: sourceURL, Rel: "via"}},
	}
	if src.Title == "" {
		f.Title = atom.PlainText(sourceURL)
	}
	if src.Description != "" {
		subtitle := atom.PlainText(src.Description)
		f.Subtitle = &subtitle
	}
	if src.Link != "" {
		f.Links = append(f.Links, atom.Link{Href: src.Link, Rel: "alternate"})
	}
	if src.Copyright != "" {
		rights := atom.PlainText(src.Copyright)
		f.Rights = &rights
	}
	if src.Image != nil {
		f.Logo = src.Image.URL
	}
	f.Authors = people(src.Authors)
	f.Categories = categories(src.Categories)

	switch {
	case src.UpdatedParsed != nil:
		f.Updated = src.UpdatedParsed.UTC()
	case src.PublishedParsed != nil:
		f.Updated = src.PublishedParsed.UTC()
	}

	for i, item := range src.Items {
		if i >= limit {
			break
		}
		e := convertItem(sourceURL, item, f.Updated)
		if e.Updated.After(f.Updated) {
			f.Updated = e.Updated
		}
		f.Entries = append(f.Entries, e)
	}
	if f.Updated.IsZero() {
		f.Updated = time.Now().UTC()
	}
	return f
}

func convertItem(sourceURL string, item *gofeed.Item, fallback time.Time) atom.Entry {
	e := atom.Entry{
		ID:         entryID(sourceURL, item),
		Title:      atom.PlainText(item.Title),
		Authors:    people(item.Authors),
		Categories: categories(item.Categories),
	}
	if item.Link != "" {
		e.Links = []atom.Link{{Href: item.Link, Rel: "alternate"}}
	}
	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		e.Published = &published
	}
	switch {
	case item.UpdatedParsed != nil:
		e.Updated = item.UpdatedParsed.UTC()
	case item.PublishedParsed != nil:
		e.Updated = item.PublishedParsed.UTC()
	default:
		e.Updated = fallback
	}
	if item.Description != "" {
		e.Summary = atom.HTML(item.Description)
	}
	if item.Content != "" {
		e.Content = atom.HTML(item.Content)
	}
	return e
}

// entryID prefers the upstream GUID, then the link. Items with neither get a
// name-based UUID so the id stays stable across regenerations.
func entryID(sourceURL string, item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	name := sourceURL + "\n" + item.Title + "\n" + item.Published
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func people(src []*gofeed.Person) []atom.Person {
	var out []atom.Person
	for _, p := range src {
		if p == nil || (p.Name == "" && p.Email == "") {
			continue
		}
		name := p.Name
		if name == "" {
			name = p.Email
		}
		out = append(out, atom.Person{Name: name, Email: p.Email})
	}
	return out
}

func categories(src []string) []atom.Category {
	var out []atom.Category
	for _, c := range src {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, atom.Category{Term: c})
		}
	}
	return out
}
