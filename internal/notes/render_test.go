package notes

import (
	"strings"
	"testing"
)

func TestRenderHTML_Basic(t *testing.T) {
	t.Parallel()

	out := string(RenderHTML("# Heading\n\nSome *emphasis* here."))
	if !strings.Contains(out, "<h1") {
		t.Errorf("expected heading in output, got %q", out)
	}
	if !strings.Contains(out, "<em>emphasis</em>") {
		t.Errorf("expected emphasis in output, got %q", out)
	}
}

func TestRenderHTML_StripsScript(t *testing.T) {
	t.Parallel()

	out := string(RenderHTML("hello <script>alert('x')</script> world"))
	if strings.Contains(out, "<script") {
		t.Errorf("script tag survived sanitization: %q", out)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("surrounding text lost: %q", out)
	}
}

func TestRenderHTML_KeepsLinks(t *testing.T) {
	t.Parallel()

	out := string(RenderHTML("[site](https://example.com)"))
	if !strings.Contains(out, `href="https://example.com"`) {
		t.Errorf("expected link to survive, got %q", out)
	}
}
