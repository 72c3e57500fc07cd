package extract

import (
	"context"
	"strings"
	"testing"
)

func TestHTMLText_ExtractsMainContent(t *testing.T) {
	page := []byte(`<!DOCTYPE html><html><head><title>Gazette</title></head><body>
<nav>Home | Search</nav>
<main><h1>Decision 42</h1><p>The authority орders the register updated.</p>
<p>Effective from 1 March.</p></main>
<footer>Contact us</footer>
</body></html>`)

	s := HTMLText{}
	text, err := s.Attempt(context.Background(), page, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Decision 42") || !strings.Contains(text, "Effective from 1 March.") {
		t.Fatalf("missing content: %q", text)
	}
	if strings.Contains(text, "Home | Search") || strings.Contains(text, "Contact us") {
		t.Fatalf("boilerplate leaked into: %q", text)
	}
}

func TestHTMLText_SkipsConsentBanner(t *testing.T) {
	page := []byte(`<html><body><div class="cookie-consent">We use cookies</div><p>Real content here</p></body></html>`)
	text, err := HTMLText{}.Attempt(context.Background(), page, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(text, "cookies") {
		t.Fatalf("consent banner leaked: %q", text)
	}
	if !strings.Contains(text, "Real content here") {
		t.Fatalf("content dropped: %q", text)
	}
}

func TestHTMLText_RefusesPDFInput(t *testing.T) {
	if _, err := (HTMLText{}).Attempt(context.Background(), []byte("%PDF-1.7 ..."), 0); err == nil {
		t.Fatalf("expected error for PDF input")
	}
}

func TestHTMLText_RefusesBinaryInput(t *testing.T) {
	if _, err := (HTMLText{}).Attempt(context.Background(), []byte{0x00, 0x01, 0x02}, 0); err == nil {
		t.Fatalf("expected error for binary input")
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "  a   b \n\n\n\nc\t\td  \n\n"
	got := normalizeWhitespace(in)
	if got != "a b\n\nc d" {
		t.Fatalf("got %q", got)
	}
}
