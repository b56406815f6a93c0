package notes

import (
	"reflect"
	"testing"
)

func TestNormalizeTag(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"Work", "work"},
		{"  Work  ", "work"},
		{"HOME", "home"},
		{"   ", ""},
		{"", ""},
		{"already-lower", "already-lower"},
	}
	for _, tc := range cases {
		if got := NormalizeTag(tc.in); got != tc.want {
			t.Errorf("NormalizeTag(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAppendTag(t *testing.T) {
	t.Parallel()

	tags := []string{"work"}

	// Duplicate after normalization is dropped silently.
	tags = AppendTag(tags, " Work ")
	if !reflect.DeepEqual(tags, []string{"work"}) {
		t.Fatalf("duplicate should be dropped, got %v", tags)
	}

	// Blank input is rejected silently.
	tags = AppendTag(tags, "   ")
	if !reflect.DeepEqual(tags, []string{"work"}) {
		t.Fatalf("blank should be rejected, got %v", tags)
	}

	// New tags append in order.
	tags = AppendTag(tags, "Home")
	if !reflect.DeepEqual(tags, []string{"work", "home"}) {
		t.Fatalf("expected [work home], got %v", tags)
	}
}

func TestNormalizeTags_PreservesOrder(t *testing.T) {
	t.Parallel()

	got := NormalizeTags([]string{"Beta", "alpha", " beta ", "", "Gamma"})
	want := []string{"beta", "alpha", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags = %v, want %v", got, want)
	}
}
