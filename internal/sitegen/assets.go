package sitegen

import (
	"sort"
	"strings"

	"github.com/splax/localvercel/sites/internal/domain"
)

var imageKeyHints = []string{"image", "img", "photo", "avatar", "logo", "background", "src", "thumbnail"}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".avif"}

// collectImageURLs walks every section's content and returns the sorted,
// de-duplicated image URLs it references.
func collectImageURLs(pages []domain.Page) []string {
	seen := map[string]struct{}{}
	for _, page := range pages {
		for _, section := range page.Sections {
			walkImages(section.Content, false, seen)
		}
	}
	if len(seen) == 0 {
		return nil
	}
	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

func walkImages(value any, imageContext bool, seen map[string]struct{}) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			walkImages(child, imageContext || isImageKey(key), seen)
		}
	case []any:
		for _, child := range v {
			walkImages(child, imageContext, seen)
		}
	case string:
		s := strings.TrimSpace(v)
		if !looksLikeURL(s) {
			return
		}
		if imageContext || hasImageExtension(s) {
			seen[s] = struct{}{}
		}
	}
}

func isImageKey(key string) bool {
	lower := strings.ToLower(key)
	for _, hint := range imageKeyHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "/")
}

func hasImageExtension(s string) bool {
	lower := strings.ToLower(s)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// hostingConfig renders netlify.toml with a clean-URL rewrite per
// non-homepage page.
func hostingConfig(pages []domain.ExportPage) string {
	var b strings.Builder
	for _, page := range pages {
		if page.IsHomepage {
			continue
		}
		b.WriteString("[[redirects]]\n")
		b.WriteString(`  from = "/` + page.Slug + "\"\n")
		b.WriteString(`  to = "/` + page.Filename + "\"\n")
		b.WriteString("  status = 200\n\n")
	}
	return b.String()
}
