// Package bundle packages a generated site into the zip archive uploaded to
// the hosting provider.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/splax/localvercel/sites/internal/domain"
)

const (
	manifestPath  = "manifest.json"
	redirectsPath = "_redirects"
)

// ErrEmptyArchive is returned when an export holds neither pages nor assets.
var ErrEmptyArchive = fmt.Errorf("%w: export produced an empty archive", domain.ErrValidation)

var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Package writes the export as a zip archive: index.html for the homepage,
// <slug>.html for every other page, the assets at their paths, manifest.json
// and a _redirects file for clean URLs. Entries carry the export time so
// identical exports yield identical archives.
func Package(export *domain.ExportResult) ([]byte, error) {
	if export == nil {
		return nil, ErrEmptyArchive
	}
	modified := export.Manifest.ExportedAt.UTC()
	if modified.Before(zipEpoch) {
		modified = zipEpoch
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	written := map[string]bool{}
	files := 0

	add := func(name string, content []byte) error {
		name = cleanPath(name)
		if name == "" || written[name] {
			return nil
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written[name] = true
		return nil
	}

	var redirects strings.Builder
	for _, page := range export.Pages {
		name := PageFilename(page)
		if err := add(name, []byte(page.Content)); err != nil {
			return nil, err
		}
		files++
		if !page.IsHomepage {
			slug := strings.TrimSuffix(name, ".html")
			fmt.Fprintf(&redirects, "/%s /%s 200\n", slug, name)
		}
	}
	for _, asset := range export.Assets {
		if asset.Content == "" {
			continue
		}
		if err := add(asset.Path, []byte(asset.Content)); err != nil {
			return nil, err
		}
		files++
	}
	if files == 0 {
		return nil, ErrEmptyArchive
	}

	manifest, err := json.MarshalIndent(export.Manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := add(manifestPath, manifest); err != nil {
		return nil, err
	}
	if redirects.Len() > 0 {
		if err := add(redirectsPath, []byte(redirects.String())); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// PageFilename is the archive path of a page.
func PageFilename(page domain.ExportPage) string {
	if page.IsHomepage {
		return "index.html"
	}
	slug := cleanPath(page.Slug)
	if slug == "" {
		slug = strings.TrimSuffix(cleanPath(page.Filename), ".html")
	}
	if slug == "" {
		return ""
	}
	return slug + ".html"
}

// cleanPath makes name relative and rejects paths escaping the archive root.
func cleanPath(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	cleaned := path.Clean("/" + name)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return ""
	}
	return cleaned
}
