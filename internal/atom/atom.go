// Package atom models Atom 1.0 documents served by the feed workers.
//
// The same types serialize to XML for responses and to JSON for the cache.
package atom

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"
)

// Namespace is the Atom 1.0 XML namespace.
const Namespace = "http://www.w3.org/2005/Atom"

// ContentType is the media type of an encoded Feed.
const ContentType = "application/atom+xml; charset=utf-8"

// Provenance stamped onto every freshly generated feed.
const (
	GeneratorName = "Infovore"
	GeneratorURI  = "https://github.com/bryan-buckman/infovore"
)

// Feed represents the root of an Atom document.
type Feed struct {
	XMLName    xml.Name   `xml:"feed" json:"-"`
	Xmlns      string     `xml:"xmlns,attr" json:"-"`
	ID         string     `xml:"id" json:"id"`
	Title      Text       `xml:"title" json:"title"`
	Subtitle   *Text      `xml:"subtitle,omitempty" json:"subtitle,omitempty"`
	Updated    time.Time  `xml:"updated" json:"updated"`
	Links      []Link     `xml:"link" json:"links,omitempty"`
	Authors    []Person   `xml:"author" json:"authors,omitempty"`
	Categories []Category `xml:"category" json:"categories,omitempty"`
	Generator  *Generator `xml:"generator,omitempty" json:"generator,omitempty"`
	Icon       string     `xml:"icon,omitempty" json:"icon,omitempty"`
	Logo       string     `xml:"logo,omitempty" json:"logo,omitempty"`
	Rights     *Text      `xml:"rights,omitempty" json:"rights,omitempty"`
	Entries    []Entry    `xml:"entry" json:"entries,omitempty"`
}

// Entry is a single item of a feed.
type Entry struct {
	ID         string     `xml:"id" json:"id"`
	Title      Text       `xml:"title" json:"title"`
	Updated    time.Time  `xml:"updated" json:"updated"`
	Published  *time.Time `xml:"published,omitempty" json:"published,omitempty"`
	Links      []Link     `xml:"link" json:"links,omitempty"`
	Authors    []Person   `xml:"author" json:"authors,omitempty"`
	Categories []Category `xml:"category" json:"categories,omitempty"`
	Summary    *Text      `xml:"summary,omitempty" json:"summary,omitempty"`
	Content    *Text      `xml:"content,omitempty" json:"content,omitempty"`
}

// Text is an Atom text construct. Type is "text" (default), "html" or "xhtml".
type Text struct {
	Type  string `xml:"type,attr,omitempty" json:"type,omitempty"`
	Value string `xml:",chardata" json:"value"`
}

// Link is an Atom link element.
type Link struct {
	Href     string `xml:"href,attr" json:"href"`
	Rel      string `xml:"rel,attr,omitempty" json:"rel,omitempty"`
	Type     string `xml:"type,attr,omitempty" json:"type,omitempty"`
	Title    string `xml:"title,attr,omitempty" json:"title,omitempty"`
	Hreflang string `xml:"hreflang,attr,omitempty" json:"hreflang,omitempty"`
}

// Person is an author or contributor.
type Person struct {
	Name  string `xml:"name" json:"name"`
	URI   string `xml:"uri,omitempty" json:"uri,omitempty"`
	Email string `xml:"email,omitempty" json:"email,omitempty"`
}

// Category is an Atom category element.
type Category struct {
	Term   string `xml:"term,attr" json:"term"`
	Scheme string `xml:"scheme,attr,omitempty" json:"scheme,omitempty"`
	Label  string `xml:"label,attr,omitempty" json:"label,omitempty"`
}

// Generator identifies the software that produced the feed.
type Generator struct {
	URI     string `xml:"uri,attr,omitempty" json:"uri,omitempty"`
	Version string `xml:"version,attr,omitempty" json:"version,omitempty"`
	Value   string `xml:",chardata" json:"value"`
}

// PlainText returns a text construct of type "text".
func PlainText(s string) Text {
	return Text{Value: s}
}

// HTML returns a text construct of type "html".
func HTML(s string) *Text {
	return &Text{Type: "html", Value: s}
}

// SetGenerator replaces the generator element.
func (f *Feed) SetGenerator(g *Generator) {
	f.Generator = g
}

// StampProvenance marks the feed as produced by this service.
func (f *Feed) StampProvenance() {
	f.SetGenerator(&Generator{Value: GeneratorName, URI: GeneratorURI})
}

// Encode renders the feed as an XML document.
func Encode(f *Feed) ([]byte, error) {
	doc := *f
	doc.Xmlns = Namespace
	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode atom: %w", err)
	}
	return append([]byte(xml.Header), output...), nil
}

// Marshal serializes the feed for storage.
func Marshal(f *Feed) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal feed: %w", err)
	}
	return data, nil
}

// Unmarshal restores a feed written by Marshal.
func Unmarshal(data []byte) (*Feed, error) {
	var f Feed
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal feed: %w", err)
	}
	return &f, nil
}
