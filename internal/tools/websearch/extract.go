package websearch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const searchUserAgent = "Mozilla/5.0 (compatible; QuailsBot/1.0)"

// maxExtractedChars bounds the extracted text returned for one page.
const maxExtractedChars = 10000

// ContentExtractor pulls readable text out of web pages.
type ContentExtractor struct {
	httpClient    *http.Client
	skipSSRFCheck bool // test-only escape hatch for localhost URLs
}

// NewContentExtractor creates a content extractor with SSRF protection.
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewContentExtractorForTesting allows localhost URLs. Tests only.
func NewContentExtractorForTesting() *ContentExtractor {
	e := NewContentExtractor()
	e.skipSSRFCheck = true
	return e
}

// Extract fetches targetURL and returns its readable text content.
func (e *ContentExtractor) Extract(ctx context.Context, targetURL string) (string, error) {
	if !e.skipSSRFCheck {
		if err := validateURLForSSRF(targetURL); err != nil {
			return "", fmt.Errorf("URL validation failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	content := extractReadableContent(string(body))
	if len(content) > maxExtractedChars {
		content = content[:maxExtractedChars] + "..."
	}
	return content, nil
}

// validateURLForSSRF rejects URLs that reach private or reserved addresses.
func validateURLForSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	lowerHost := strings.ToLower(hostname)
	if lowerHost == "localhost" || strings.HasSuffix(lowerHost, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// Unresolvable hosts pass; DNS may be handled by a proxy.
		return nil
	}
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP address")
		}
	}
	return nil
}

func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	// Cloud metadata endpoint.
	return ip.Equal(net.ParseIP("169.254.169.254"))
}

// extractReadableContent implements a simplified readability pass: strip
// chrome tags, pull the title and meta description, then the main content.
func extractReadableContent(html string) string {
	for _, tag := range []string{"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside"} {
		html = removeTag(html, tag)
	}

	title := extractTitle(html)
	description := extractMetaDescription(html)
	content := extractMainContent(html)
	if content == "" {
		content = extractFromBody(html)
	}
	content = cleanText(content)

	var result strings.Builder
	if title != "" {
		result.WriteString("Title: ")
		result.WriteString(title)
		result.WriteString("\n\n")
	}
	if description != "" {
		result.WriteString("Description: ")
		result.WriteString(description)
		result.WriteString("\n\n")
	}
	result.WriteString(content)
	return result.String()
}

func removeTag(html, tag string) string {
	re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(html, "")
}

func extractTitle(html string) string {
	for _, pattern := range []string{
		`(?i)<title[^>]*>(.*?)</title>`,
		`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']*)["']`,
		`(?i)<h1[^>]*>(.*?)</h1>`,
	} {
		if matches := regexp.MustCompile(pattern).FindStringSubmatch(html); len(matches) > 1 {
			return cleanText(matches[1])
		}
	}
	return ""
}

func extractMetaDescription(html string) string {
	for _, pattern := range []string{
		`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`,
		`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']*)["']`,
	} {
		if matches := regexp.MustCompile(pattern).FindStringSubmatch(html); len(matches) > 1 {
			return cleanText(matches[1])
		}
	}
	return ""
}

func extractMainContent(html string) string {
	patterns := []string{
		`(?is)<main[^>]*>(.*?)</main>`,
		`(?is)<article[^>]*>(.*?)</article>`,
		`(?is)<div[^>]*class=["'][^"']*content[^"']*["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*id=["']content["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*role=["']main["'][^>]*>(.*?)</div>`,
	}
	for _, pattern := range patterns {
		if matches := regexp.MustCompile(pattern).FindStringSubmatch(html); len(matches) > 1 {
			text := extractText(matches[1])
			if len(strings.TrimSpace(text)) > 200 {
				return text
			}
		}
	}
	return ""
}

func extractFromBody(html string) string {
	if matches := regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`).FindStringSubmatch(html); len(matches) > 1 {
		return extractText(matches[1])
	}
	return ""
}

func extractText(html string) string {
	for _, tag := range []string{"p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br"} {
		html = regexp.MustCompile(`(?i)</?`+tag+`[^>]*>`).ReplaceAllString(html, "\n")
	}
	return regexp.MustCompile(`<[^>]*>`).ReplaceAllString(html, "")
}

func cleanText(text string) string {
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
	)
	text = replacer.Replace(text)

	lines := strings.Split(text, "\n")
	spaceRe := regexp.MustCompile(`[^\S\n]+`)
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
