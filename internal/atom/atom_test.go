package atom

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	gofeedatom "github.com/mmcdole/gofeed/atom"
)

func sampleFeed() *Feed {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	published := updated.Add(-time.Hour)
	return &Feed{
		ID:      "https://crates.io/crates/serde",
		Title:   PlainText("serde versions"),
		Updated: updated,
		Links:   []Link{{Href: "https://crates.io/crates/serde", Rel: "alternate"}},
		Entries: []Entry{
			{
				ID:        "https://crates.io/crates/serde/1.0.200",
				Title:     PlainText("serde 1.0.200"),
				Updated:   updated,
				Published: &published,
				Authors:   []Person{{Name: "dtolnay"}},
				Summary:   HTML("<b>MIT OR Apache-2.0</b>"),
			},
		},
	}
}

func TestEncodeProducesParsableAtom(t *testing.T) {
	f := sampleFeed()
	f.StampProvenance()

	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(string(data), "<?xml") {
		t.Errorf("expected XML header, got %q", string(data[:20]))
	}

	parsed, err := (&gofeedatom.Parser{}).Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse encoded feed: %v", err)
	}
	if parsed.Title != "serde versions" {
		t.Errorf("title = %q", parsed.Title)
	}
	if parsed.Generator == nil || parsed.Generator.Value != GeneratorName || parsed.Generator.URI != GeneratorURI {
		t.Errorf("unexpected generator %+v", parsed.Generator)
	}
	if parsed.Generator != nil && parsed.Generator.Version != "" {
		t.Errorf("generator must not carry a version, got %q", parsed.Generator.Version)
	}
	if len(parsed.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(parsed.Entries))
	}
	if parsed.Entries[0].ID != "https://crates.io/crates/serde/1.0.200" {
		t.Errorf("entry id = %q", parsed.Entries[0].ID)
	}
	if parsed.Entries[0].Summary != "<b>MIT OR Apache-2.0</b>" {
		t.Errorf("summary = %q", parsed.Entries[0].Summary)
	}
}

func TestEncodeDoesNotMutateFeed(t *testing.T) {
	f := sampleFeed()
	if _, err := Encode(f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if f.Xmlns != "" {
		t.Errorf("Encode should work on a copy, Xmlns = %q", f.Xmlns)
	}
}

func TestMarshalRoundTripKeepsGenerator(t *testing.T) {
	f := sampleFeed()
	f.StampProvenance()

	data, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(f, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("not json")); err == nil {
		t.Error("expected error for invalid content")
	}
}
