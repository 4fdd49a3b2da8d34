package files

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIdentifyFiles(t *testing.T) {
	p := NewProcessor(NewFetcher(nil, ""))

	images, texts := p.IdentifyFiles([]string{
		"uploads/a.PNG",
		"uploads/notes.txt",
		"https://cdn.example.com/b.webp?sig=1",
		"uploads/report.md",
		"uploads/c.jpeg",
	})

	if len(images) != 3 {
		t.Errorf("images = %v, want 3 entries", images)
	}
	if len(texts) != 2 || texts[0] != "uploads/notes.txt" || texts[1] != "uploads/report.md" {
		t.Errorf("texts = %v", texts)
	}
}

func TestImageMIMEType(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"a.png", "image/png"},
		{"a.JPG", "image/jpeg"},
		{"a.gif", "image/gif"},
		{"a.webp", "image/webp"},
		{"a.ico", "image/jpeg"},
		{"a.heic", "image/jpeg"},
		{"noext", "image/jpeg"},
	}

	for _, tt := range tests {
		if got := ImageMIMEType(tt.ref); got != tt.want {
			t.Errorf("ImageMIMEType(%s) = %s, want %s", tt.ref, got, tt.want)
		}
	}
}

func TestFetcher_ResolveURL(t *testing.T) {
	f := NewFetcher(nil, "https://cdn.example.com/")

	if got := f.ResolveURL("uploads/a.txt"); got != "https://cdn.example.com/uploads/a.txt" {
		t.Errorf("ResolveURL() = %s", got)
	}
	if got := f.ResolveURL("/uploads/a.txt"); got != "https://cdn.example.com/uploads/a.txt" {
		t.Errorf("ResolveURL() = %s", got)
	}
	if got := f.ResolveURL("https://other.example.com/x.png"); got != "https://other.example.com/x.png" {
		t.Errorf("ResolveURL() = %s, want absolute URL unchanged", got)
	}
}

func TestProcessFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/a.txt":
			w.Write([]byte("alpha content"))
		case "/docs/b.md":
			w.Write([]byte("beta content"))
		case "/docs/bin.pdf":
			w.Write([]byte{0xff, 0xfe, 0x00, 0x81})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewProcessor(NewFetcher(server.Client(), server.URL))

	text, err := p.ProcessFiles(context.Background(), []string{"docs/a.txt", "docs/missing.txt", "docs/bin.pdf", "docs/b.md"})
	if err != nil {
		t.Fatalf("ProcessFiles() error = %v", err)
	}

	want := "\n=== File: a.txt ===\nalpha content\n=== File: b.md ===\nbeta content"
	if text != want {
		t.Errorf("ProcessFiles() = %q, want %q", text, want)
	}
}

func TestProcessFiles_Empty(t *testing.T) {
	p := NewProcessor(NewFetcher(nil, ""))
	text, err := p.ProcessFiles(context.Background(), nil)
	if err != nil || text != "" {
		t.Errorf("ProcessFiles(nil) = %q, %v", text, err)
	}
}

func TestSupportedImageInfo(t *testing.T) {
	info := SupportedImageInfo()
	if len(info.SupportedFormats) != 8 {
		t.Errorf("SupportedFormats = %v", info.SupportedFormats)
	}
	for _, provider := range []string{"openai", "anthropic", "google"} {
		if _, ok := info.UsageGuidelines[provider]; !ok {
			t.Errorf("missing guidance for %s", provider)
		}
	}
	if !strings.Contains(info.UsageGuidelines["openai"].TokenCost, "85") {
		t.Errorf("openai token cost = %s", info.UsageGuidelines["openai"].TokenCost)
	}
}
