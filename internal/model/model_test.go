package model

import "testing"

func TestNormalizeSegments(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"/":                 "",
		"crates-io":         "crates-io",
		"/crates-io/":       "crates-io",
		"//a///b/":          "a/b",
		"a/b":               "a/b",
		"/crate-versions//": "crate-versions",
	}
	for in, want := range tests {
		if got := NormalizeSegments(in); got != want {
			t.Errorf("NormalizeSegments(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSourceIdentitySlashFormatting(t *testing.T) {
	a := NewSourceIdentity("/crates-io/", "crate-versions")
	b := NewSourceIdentity("crates-io", "//crate-versions/")
	if a != b {
		t.Fatalf("expected equal identities, got %+v and %+v", a, b)
	}
	if got := a.Route(); got != "/crates-io/crate-versions" {
		t.Errorf("Route() = %q", got)
	}
}

type params struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
	Flag  bool   `json:"flag"`
}

func TestCanonicalKeyOrderIndependent(t *testing.T) {
	a := CanonicalKey{"b": "2", "a": "1", "c": true}
	b := CanonicalKey{"c": true, "a": "1", "b": "2"}

	ca, err := a.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	cb, err := b.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if ca != cb {
		t.Errorf("expected same canonical form, got %s and %s", ca, cb)
	}
	if ca != `{"a":"1","b":"2","c":true}` {
		t.Errorf("unexpected canonical form %s", ca)
	}
}

func TestCanonicalKeyDistinguishesSubsets(t *testing.T) {
	a := CanonicalKey{"name": "serde"}
	b := CanonicalKey{"name": "serde", "limit": float64(5)}
	ca, _ := a.Canonical()
	cb, _ := b.Canonical()
	if ca == cb {
		t.Errorf("subset key must not match superset: %s", ca)
	}
}

func TestCanonicalKeyFromParams(t *testing.T) {
	key, err := NewCanonicalKey(params{Name: "serde", Flag: true})
	if err != nil {
		t.Fatalf("NewCanonicalKey: %v", err)
	}
	if _, ok := key["limit"]; ok {
		t.Error("omitted field should not be part of the key")
	}

	var back params
	if err := key.Decode(&back); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.Name != "serde" || !back.Flag {
		t.Errorf("unexpected decoded params %+v", back)
	}
}

func TestCanonicalKeyRejectsNonObject(t *testing.T) {
	if _, err := NewCanonicalKey([]string{"a"}); err == nil {
		t.Error("expected error for non-object params")
	}
}

func TestNilCanonicalKey(t *testing.T) {
	var k CanonicalKey
	got, err := k.Canonical()
	if err != nil || got != "{}" {
		t.Errorf("Canonical() = %q, %v", got, err)
	}
}
