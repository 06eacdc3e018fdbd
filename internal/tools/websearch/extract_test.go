package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Migration Patterns of Quail</title>
<meta name="description" content="How quail populations move with the seasons.">
<style>body { color: red; }</style>
<script>var tracking = true;</script>
</head>
<body>
<nav><a href="/">Home</a></nav>
<main>
<h1>Migration Patterns of Quail</h1>
<p>Quail are largely sedentary birds, but several species undertake seasonal movements driven by rainfall and food availability.</p>
<p>The common quail is the only galliform known to make long migratory flights, crossing the Mediterranean twice a year in large numbers.</p>
<p>Ringing studies show individual birds returning to the same breeding grounds across multiple seasons, which suggests strong site fidelity despite the distances involved.</p>
</main>
<footer>Copyright</footer>
</body>
</html>`

func TestExtractReadableContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	extractor := NewContentExtractorForTesting()
	content, err := extractor.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if !strings.Contains(content, "Title: Migration Patterns of Quail") {
		t.Errorf("missing title in:\n%s", content)
	}
	if !strings.Contains(content, "Description: How quail populations move") {
		t.Errorf("missing description in:\n%s", content)
	}
	if !strings.Contains(content, "sedentary birds") {
		t.Errorf("missing body content in:\n%s", content)
	}
	if strings.Contains(content, "tracking") || strings.Contains(content, "color: red") {
		t.Errorf("script/style leaked into:\n%s", content)
	}
	if strings.Contains(content, "Copyright") {
		t.Errorf("footer leaked into:\n%s", content)
	}
}

func TestExtractRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	extractor := NewContentExtractorForTesting()
	if _, err := extractor.Extract(context.Background(), srv.URL); err == nil {
		t.Fatal("Extract: expected error for non-HTML content")
	}
}

func TestSSRFValidation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"localhost", "http://localhost/admin", true},
		{"loopback ip", "http://127.0.0.1:8080/", true},
		{"metadata endpoint", "http://169.254.169.254/latest/meta-data/", true},
		{"file scheme", "file:///etc/passwd", true},
		{"missing hostname", "http:///path", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateURLForSSRF(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateURLForSSRF(%q) = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestCleanTextEntitiesAndWhitespace(t *testing.T) {
	in := "a  &amp;  b\n\n\n\nc &lt;tag&gt;"
	got := cleanText(in)
	want := "a & b\n\nc <tag>"
	if got != want {
		t.Errorf("cleanText = %q, want %q", got, want)
	}
}
