// Package cratesio generates feeds from the crates.io registry API.
package cratesio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/infovore/internal/atom"
	"github.com/bryan-buckman/infovore/internal/feedworker"
	"github.com/bryan-buckman/infovore/internal/model"
)

// Prefix is the default source prefix.
const Prefix = "crates-io"

// DefaultBaseURL is the public registry.
const DefaultBaseURL = "https://crates.io"

var crateNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Params is the canonical query of the crate-versions resource.
type Params struct {
	CrateName     string `json:"crate_name"`
	IncludeYanked bool   `json:"include_yanked"`
}

// CrateVersions publishes every release of one crate.
type CrateVersions struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

var _ feedworker.Generator = (*CrateVersions)(nil)

// NewCrateVersions creates the generator. crates.io rejects requests without
// a User-Agent, so an empty one falls back to a generic value.
func NewCrateVersions(baseURL, userAgent string, client *http.Client) *CrateVersions {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = "infovore"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CrateVersions{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    client,
	}
}

func (g *CrateVersions) ResourcePath() string { return "crate-versions" }

// Normalize accepts crate_name (required) and include_yanked (default true).
func (g *CrateVersions) Normalize(rawQuery string) (model.CanonicalKey, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, feedworker.NewParseError(rawQuery, err)
	}

	p := Params{
		CrateName:     strings.TrimSpace(values.Get("crate_name")),
		IncludeYanked: true,
	}
	if p.CrateName == "" {
		return nil, feedworker.NewParseError(rawQuery, errors.New("crate_name is required"))
	}
	if !crateNameRe.MatchString(p.CrateName) {
		return nil, feedworker.NewParseError(rawQuery, fmt.Errorf("invalid crate_name %q", p.CrateName))
	}
	// Crate names are case-insensitive on crates.io.
	p.CrateName = strings.ToLower(p.CrateName)

	if raw := values.Get("include_yanked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, feedworker.NewParseError(rawQuery, fmt.Errorf("include_yanked: %w", err))
		}
		p.IncludeYanked = b
	}

	return model.NewCanonicalKey(p)
}

type versionsResponse struct {
	Versions []version `json:"versions"`
}

type version struct {
	Num         string     `json:"num"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Yanked      bool       `json:"yanked"`
	License     string     `json:"license"`
	CrateSize   int64      `json:"crate_size"`
	RustVersion string     `json:"rust_version"`
	PublishedBy *publisher `json:"published_by"`
}

type publisher struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// Generate fetches the versions of the crate and turns them into entries,
// newest first as returned by the API.
func (g *CrateVersions) Generate(ctx context.Context, key model.CanonicalKey) (*atom.Feed, error) {
	var p Params
	if err := key.Decode(&p); err != nil {
		return nil, err
	}

	versions, err := g.fetchVersions(ctx, p.CrateName)
	if err != nil {
		return nil, err
	}

	crateURL := "https://crates.io/crates/" + url.PathEscape(p.CrateName)
	feed := &atom.Feed{
		ID:    crateURL,
		Title: atom.PlainText(p.CrateName + " versions on crates.io"),
		Links: []atom.Link{
			{Href: crateURL, Rel: "alternate", Type: "text/html"},
		},
	}

	for _, v := range versions {
		if v.Yanked && !p.IncludeYanked {
			continue
		}
		feed.Entries = append(feed.Entries, versionEntry(p.CrateName, crateURL, v))
		if v.UpdatedAt.After(feed.Updated) {
			feed.Updated = v.UpdatedAt.UTC()
		}
	}
	if feed.Updated.IsZero() {
		feed.Updated = time.Now().UTC()
	}
	return feed, nil
}

func versionEntry(name, crateURL string, v version) atom.Entry {
	title := name + " " + v.Num
	if v.Yanked {
		title += " (yanked)"
	}
	versionURL := crateURL + "/" + url.PathEscape(v.Num)
	created := v.CreatedAt.UTC()

	e := atom.Entry{
		ID:        versionURL,
		Title:     atom.PlainText(title),
		Updated:   v.UpdatedAt.UTC(),
		Published: &created,
		Links:     []atom.Link{{Href: versionURL, Rel: "alternate", Type: "text/html"}},
	}
	if v.PublishedBy != nil {
		author := atom.Person{Name: v.PublishedBy.Login, URI: v.PublishedBy.URL}
		if v.PublishedBy.Name != "" {
			author.Name = v.PublishedBy.Name
		}
		e.Authors = []atom.Person{author}
	}

	var details []string
	if v.License != "" {
		details = append(details, "License: "+v.License)
	}
	if v.RustVersion != "" {
		details = append(details, "MSRV: "+v.RustVersion)
	}
	if v.CrateSize > 0 {
		details = append(details, fmt.Sprintf("Size: %d bytes", v.CrateSize))
	}
	if len(details) > 0 {
		summary := atom.PlainText(strings.Join(details, "\n"))
		e.Summary = &summary
	}
	return e
}

func (g *CrateVersions) fetchVersions(ctx context.Context, name string) ([]version, error) {
	endpoint := fmt.Sprintf("%s/api/v1/crates/%s/versions", g.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed versionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode versions of %s: %w", name, err)
	}
	return parsed.Versions, nil
}
