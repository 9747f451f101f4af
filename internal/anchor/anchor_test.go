package anchor

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveExactMatch(t *testing.T) {
	stored := "The quick brown fox jumps over the lazy dog"
	claim := "brown fox"

	r, err := Resolve(stored, claim)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.Start != 10 || r.End != 19 {
		t.Errorf("expected (10, 19), got (%d, %d)", r.Start, r.End)
	}
	if got := r.Slice(stored); got != claim {
		t.Errorf("expected slice %q, got %q", claim, got)
	}
}

func TestResolveExactMatchFirstOccurrence(t *testing.T) {
	stored := "alpha beta alpha beta"

	r, err := Resolve(stored, "beta")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.Start != 6 || r.End != 10 {
		t.Errorf("expected first occurrence (6, 10), got (%d, %d)", r.Start, r.End)
	}
}

func TestResolveWhitespaceNormalized(t *testing.T) {
	stored := "foo   bar"
	claim := "foo bar"

	r, err := Resolve(stored, claim)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	got := normalize(r.Slice(stored))
	if got != normalize(claim) {
		t.Errorf("normalized slice = %q, want %q", got, normalize(claim))
	}
}

func TestResolveMultipleWhitespaceCollapse(t *testing.T) {
	stored := "Hello   world,\nfriend"
	claim := "Hello world, friend"

	r, err := Resolve(stored, claim)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.Start != 0 {
		t.Errorf("expected start 0, got %d", r.Start)
	}
	if r.End != len([]rune(stored)) {
		t.Errorf("expected end %d covering the full span, got %d", len([]rune(stored)), r.End)
	}
	if got := r.Slice(stored); got != stored {
		t.Errorf("expected slice to cover full original span, got %q", got)
	}
}

func TestResolveNumberedListMarkerIncluded(t *testing.T) {
	stored := "1.  Why now\nmore text"

	r, err := Resolve(stored, "Why now")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.Start != 0 {
		t.Errorf("expected start pulled back to 0, got %d", r.Start)
	}
	if got := r.Slice(stored); got != "1.  Why now" {
		t.Errorf("expected slice %q, got %q", "1.  Why now", got)
	}
}

func TestResolveBulletMarkerIncluded(t *testing.T) {
	for _, marker := range []string{"- ", "* ", "+ "} {
		stored := marker + "Ship it\n"
		r, err := Resolve(stored, "Ship it")
		if err != nil {
			t.Fatalf("Resolve() with marker %q error = %v", marker, err)
		}
		if r.Start != 0 {
			t.Errorf("marker %q: expected start 0, got %d", marker, r.Start)
		}
	}
}

func TestResolveMarkerOnLaterLine(t *testing.T) {
	stored := "# Title\n\n1. Alpha step\n2. Beta step\n"

	r, err := Resolve(stored, "Beta step")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := r.Slice(stored); got != "2. Beta step" {
		t.Errorf("expected slice %q, got %q", "2. Beta step", got)
	}

	replaced := r.Replace(stored, "Gamma step")
	want := "# Title\n\n1. Alpha step\nGamma step\n"
	if replaced != want {
		t.Errorf("after replace:\n got %q\nwant %q", replaced, want)
	}
}

func TestResolveMidLineSelectionNotExpanded(t *testing.T) {
	// Selection not adjacent to the marker keeps its position.
	stored := "1. Alpha beta gamma\n"

	r, err := Resolve(stored, "beta gamma")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.Start != 9 {
		t.Errorf("expected start 9, got %d", r.Start)
	}
}

func TestResolveNotFound(t *testing.T) {
	_, err := Resolve("abc", "xyz")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveEmptyClaim(t *testing.T) {
	if _, err := Resolve("some document", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty claim: expected ErrNotFound, got %v", err)
	}
	if _, err := Resolve("some document", "   "); !errors.Is(err, ErrNotFound) {
		t.Errorf("whitespace claim: expected ErrNotFound, got %v", err)
	}
}

func TestResolveIdempotentReResolution(t *testing.T) {
	stored := "# Notes\n\nSome paragraph about the plan.\n\n1. First step\n2. Second step\n"

	first, err := Resolve(stored, "Second step")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	again, err := Resolve(stored, first.Slice(stored))
	if err != nil {
		t.Fatalf("re-Resolve() error = %v", err)
	}
	if again != first {
		t.Errorf("re-resolution drifted: first (%d, %d), again (%d, %d)",
			first.Start, first.End, again.Start, again.End)
	}
}

func TestResolveRangeInvariant(t *testing.T) {
	cases := []struct {
		stored string
		claim  string
	}{
		{"plain text with words", "with words"},
		{"tabs\tbetween\twords", "tabs between words"},
		{"- bullet content here", "bullet content here"},
		{"Hello   world,\nfriend", "Hello world, friend"},
		{"10. tenth item\n", "tenth item"},
	}
	for _, tc := range cases {
		r, err := Resolve(tc.stored, tc.claim)
		if err != nil {
			t.Errorf("Resolve(%q, %q) error = %v", tc.stored, tc.claim, err)
			continue
		}
		n := len([]rune(tc.stored))
		if r.Start < 0 || r.Start > r.End || r.End > n {
			t.Errorf("Resolve(%q, %q) violated 0 <= start <= end <= len: (%d, %d)",
				tc.stored, tc.claim, r.Start, r.End)
		}
	}
}

func TestResolveTabDriftBestEffort(t *testing.T) {
	// Tabs in the stored text versus single spaces in the claim: the end is
	// first guessed from the raw claim length, then corrected by the forward
	// scan to the smallest normalized-equal window.
	stored := "do\t\tthe thing now"
	claim := "do the thing"

	r, err := Resolve(stored, claim)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if normalize(r.Slice(stored)) != normalize(claim) {
		t.Errorf("normalized slice = %q, want %q", normalize(r.Slice(stored)), normalize(claim))
	}
	if !strings.HasPrefix(stored, r.Slice(stored)) {
		t.Errorf("expected slice anchored at document start, got %q", r.Slice(stored))
	}
}

func TestResolveUnicodeContent(t *testing.T) {
	stored := "préambule — déjà vu\nencore une fois"

	r, err := Resolve(stored, "déjà vu")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := r.Slice(stored); got != "déjà vu" {
		t.Errorf("expected slice %q, got %q", "déjà vu", got)
	}
}

func TestReplaceAtRange(t *testing.T) {
	stored := "keep THIS part"
	r, err := Resolve(stored, "THIS")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := r.Replace(stored, "that"); got != "keep that part" {
		t.Errorf("Replace() = %q", got)
	}
}
