package blocklist

import (
	"os"
	"path/filepath"
	"testing"
)

func mustNew(t *testing.T, cfg Config) *Matcher {
	t.Helper()

	m, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestExactAddressIgnoresCase(t *testing.T) {
	t.Parallel()

	m := mustNew(t, Config{
		Addresses: []string{"specific-spammer@gmail.com", "Another-Spammer@Yahoo.com"},
	})

	for _, address := range []string{
		"specific-spammer@gmail.com",
		"SPECIFIC-SPAMMER@GMAIL.COM",
		"another-spammer@yahoo.com",
		"  Another-Spammer@yahoo.COM ",
	} {
		if !m.IsBlocked(address) {
			t.Errorf("IsBlocked(%q): got false, want true", address)
		}
	}

	if m.IsBlocked("friend@gmail.com") {
		t.Errorf("IsBlocked(friend@gmail.com): got true, want false")
	}
}

func TestBareDomainPattern(t *testing.T) {
	t.Parallel()

	m := mustNew(t, Config{Patterns: []string{"za.com"}})

	tests := []struct {
		address string
		want    bool
	}{
		{"someone@za.com", true},
		{"someone@ZA.COM", true},
		{"someone@xza.com", false},
		{"someone@zaxcom", false},
		{"someone@sub.za.com", false},
	}

	for _, tt := range tests {
		if got := m.IsBlocked(tt.address); got != tt.want {
			t.Errorf("IsBlocked(%q): got %v, want %v", tt.address, got, tt.want)
		}
	}
}

func TestSubdomainPattern(t *testing.T) {
	t.Parallel()

	m := mustNew(t, Config{Patterns: []string{"*.za.com"}})

	tests := []struct {
		address string
		want    bool
	}{
		{"deals@offers.za.com", true},
		{"deals@a.b.za.com", true},
		{"deals@za.com", false},
		{"deals@offers.xza.com", false},
	}

	for _, tt := range tests {
		if got := m.IsBlocked(tt.address); got != tt.want {
			t.Errorf("IsBlocked(%q): got %v, want %v", tt.address, got, tt.want)
		}
	}
}

func TestBareAndSubdomainPatternsTogether(t *testing.T) {
	t.Parallel()

	m := mustNew(t, Config{Patterns: []string{"sa.com", "*.sa.com"}})

	for _, address := range []string{"a@sa.com", "a@mail.sa.com"} {
		if !m.IsBlocked(address) {
			t.Errorf("IsBlocked(%q): got false, want true", address)
		}
	}
	if m.IsBlocked("a@usa.com") {
		t.Errorf("IsBlocked(a@usa.com): got true, want false")
	}
}

func TestPatternMetacharactersAreLiteral(t *testing.T) {
	t.Parallel()

	m := mustNew(t, Config{Patterns: []string{"a+b(c).com", "mail*.example.org"}})

	tests := []struct {
		address string
		want    bool
	}{
		{"x@a+b(c).com", true},
		{"x@aab(c).com", false},
		{"x@abc.com", false},
		{"x@mail.example.org", true},
		{"x@mail42.example.org", true},
		{"x@mail42.examplexorg", false},
	}

	for _, tt := range tests {
		if got := m.IsBlocked(tt.address); got != tt.want {
			t.Errorf("IsBlocked(%q): got %v, want %v", tt.address, got, tt.want)
		}
	}
}

func TestEmptyAddressIsNotBlocked(t *testing.T) {
	t.Parallel()

	m := mustNew(t, Config{Patterns: []string{"*"}})
	if m.IsBlocked("") {
		t.Errorf("IsBlocked(\"\"): got true, want false")
	}
}

func TestLoadFileAndMerge(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	contents := "addresses:\n  - spam@example.com\npatterns:\n  - za.com\n  - \"*.za.com\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("could not write file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	merged := cfg.Merge(Config{Patterns: []string{"sa.com"}})
	if len(merged.Addresses) != 1 || len(merged.Patterns) != 3 {
		t.Fatalf("Merge: got %+v", merged)
	}

	m := mustNew(t, merged)
	for _, address := range []string{"spam@example.com", "a@za.com", "a@x.za.com", "a@sa.com"} {
		if !m.IsBlocked(address) {
			t.Errorf("IsBlocked(%q): got false, want true", address)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
