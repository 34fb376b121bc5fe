package domain

import "time"

// Asset types carried by an export bundle.
const (
	AssetCSS   = "css"
	AssetImage = "image"
	AssetFont  = "font"
	AssetJS    = "js"
	AssetOther = "other"
)

// ExportResult is the in-memory static site produced by the generator.
type ExportResult struct {
	Pages    []ExportPage  `json:"pages"`
	Assets   []ExportAsset `json:"assets"`
	Manifest Manifest      `json:"manifest"`
}

// ExportPage is one rendered HTML document.
type ExportPage struct {
	Filename   string `json:"filename"`
	Content    string `json:"content"`
	Slug       string `json:"slug"`
	IsHomepage bool   `json:"is_homepage"`
}

// ExportAsset is a non-HTML file of the bundle.
type ExportAsset struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Manifest summarises an export.
type Manifest struct {
	ProjectID   string    `json:"projectId"`
	ProjectName string    `json:"projectName"`
	ExportedAt  time.Time `json:"exportedAt"`
	PageCount   int       `json:"pageCount"`
	AssetCount  int       `json:"assetCount"`
	ImageURLs   []string  `json:"imageUrls,omitempty"`
}
