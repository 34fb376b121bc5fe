package domain

// Page is a published page of a project.
type Page struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	PageName   string `json:"page_name"`
	Slug       string `json:"slug"`
	IsHomepage bool   `json:"is_homepage"`
	Status     string `json:"status"`
	OrderIndex int    `json:"order_index"`
	// Sections holds page-builder state embedded on the page row. When it is
	// non-empty it supersedes rows from the sections table.
	Sections []Section `json:"sections,omitempty"`
}

// Section is one content block of a page.
type Section struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Content    map[string]any `json:"content"`
	Settings   map[string]any `json:"settings,omitempty"`
	OrderIndex int            `json:"order_index,omitempty"`
}

// SiteStyles is the flat style-field map of a project.
type SiteStyles map[string]any

// SectionTemplate is a stored HTML template for a section type.
type SectionTemplate struct {
	SectionType  string `json:"section_type"`
	HTMLTemplate string `json:"html_template"`
}
