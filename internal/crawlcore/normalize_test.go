package crawlcore

import "testing"

func TestCanonicalizeLowercasesHostAndStripsDefaultPort(t *testing.T) {
	got, err := Canonicalize("HTTPS://Example.COM:443/Path/", false, false)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := "https://example.com/Path"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeDropsQueryWhenConfigured(t *testing.T) {
	got, err := Canonicalize("https://example.com/page?utm=1", false, true)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "https://example.com/page" {
		t.Fatalf("expected query dropped, got %q", got)
	}
}

func TestCanonicalizeStripsWWWWhenDeduping(t *testing.T) {
	got, err := Canonicalize("https://www.example.com/page", true, false)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "https://example.com/page" {
		t.Fatalf("expected www. stripped, got %q", got)
	}
}

func TestPermutationsCoversSchemeSlashAndWWWBundle(t *testing.T) {
	perms, err := Permutations("https://example.com/page")
	if err != nil {
		t.Fatalf("permutations: %v", err)
	}
	// 2 schemes * 2 hosts * 2 paths = 8 permutations
	if len(perms) != 8 {
		t.Fatalf("expected 8 permutations, got %d: %v", len(perms), perms)
	}
}

func TestRegisteredDomainStripsSubdomainAndWWW(t *testing.T) {
	if got := RegisteredDomain("blog.www.example.com"); got != "example.com" {
		t.Fatalf("expected example.com, got %q", got)
	}
}
