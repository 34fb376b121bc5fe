package sitegen

import (
	"strings"

	"github.com/splax/localvercel/sites/internal/tpl"
)

// field is an ordered list of dotted paths under which one logical value has
// been stored by successive editor versions. The first non-empty match wins.
type field []string

// Historical content shapes, newest first.
var (
	fieldHeading     = field{"heading", "title", "sectionTitle.text", "headline.text"}
	fieldSubheading  = field{"subheading", "subtitle", "sectionDescription.text", "subheadline.text"}
	fieldDescription = field{"description", "text", "intro"}
	fieldBody        = field{"body", "content", "text", "paragraph", "richText"}

	fieldHeroHeading    = field{"heading", "heroHeading.text", "headline.text", "title"}
	fieldHeroSubheading = field{"subheading", "heroSubheading.text", "subheadline.text", "subtitle", "description"}
	fieldHeroImage      = field{"backgroundImage.url", "backgroundImage", "heroImage.url", "image.url", "image", "imageUrl"}
	fieldLayout         = field{"layout", "variant", "alignment"}

	fieldImageURL = field{"url", "src", "image.url", "imageUrl", "image"}
	fieldImageAlt = field{"alt", "altText", "image.alt", "title"}
	fieldCaption  = field{"caption", "image.caption"}

	fieldItemTitle = field{"title", "name", "heading", "label"}
	fieldItemText  = field{"description", "text", "body", "content"}
	fieldItemImage = field{"image.url", "image", "imageUrl", "photo.url", "photo", "avatar"}
	fieldItemIcon  = field{"icon", "iconName"}
	fieldItemPrice = field{"price", "pricing"}
	fieldItemLink  = field{"url", "link", "href"}

	fieldMemberName = field{"name", "title"}
	fieldMemberRole = field{"role", "position", "jobTitle"}
	fieldMemberBio  = field{"bio", "description", "text"}

	fieldNavLabel  = field{"label", "text", "title", "name"}
	fieldNavURL    = field{"url", "href", "link", "path"}
	fieldNavTarget = field{"target"}

	fieldLogoText  = field{"logo.text", "logoText", "brandName", "siteName"}
	fieldLogoImage = field{"logo.url", "logo.src", "logoUrl", "logoImage"}
	fieldCopyright = field{"copyright", "copyrightText", "legal"}

	fieldCards    = field{"cards", "items"}
	fieldFeatures = field{"features", "items", "benefits"}
	fieldMembers  = field{"members", "team", "teamMembers", "items"}
	fieldServices = field{"services", "items", "cards"}
	fieldNavItems = field{"navItems", "menuItems", "links", "items", "navigation"}
	fieldLinks    = field{"links", "footerLinks", "navItems", "items"}

	fieldPrimaryButton   = field{"button", "primaryButton", "ctaButton", "buttons.0"}
	fieldSecondaryButton = field{"secondaryButton", "buttons.1"}
	fieldCTAText         = field{"buttonText", "ctaText"}
	fieldCTAURL          = field{"buttonUrl", "buttonLink", "ctaUrl", "ctaLink"}
	fieldCTADescription  = field{"description", "text", "subheading", "body"}
	fieldObjectText      = field{"text", "title", "label"}

	fieldButtonText    = field{"text", "label", "title"}
	fieldButtonURL     = field{"url", "link", "href"}
	fieldButtonVariant = field{"variant", "type"}
	fieldButtonSize    = field{"size"}
	fieldButtonRadius  = field{"radius", "borderRadius"}
	fieldButtonStyle   = field{"style", "buttonStyle"}
)

// Section settings.
var (
	fieldBackground    = field{"backgroundColor", "background"}
	fieldForeground    = field{"textColor", "color"}
	fieldColumns       = field{"columns"}
	fieldDefaultSize   = field{"buttonSize"}
	fieldDefaultRadius = field{"buttonRadius"}
	fieldDefaultStyle  = field{"buttonStyle"}
)

// String returns the first non-empty scalar under the field's paths.
func (f field) String(content map[string]any) string {
	for _, path := range f {
		switch v := tpl.Lookup(content, path).(type) {
		case nil, map[string]any, []any:
			continue
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		default:
			if s := tpl.Stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// List returns the first non-empty list under the field's paths.
func (f field) List(content map[string]any) []any {
	for _, path := range f {
		if items, ok := tpl.Lookup(content, path).([]any); ok && len(items) > 0 {
			return items
		}
	}
	return nil
}

// Map returns the first object under the field's paths.
func (f field) Map(content map[string]any) map[string]any {
	for _, path := range f {
		if obj, ok := tpl.Lookup(content, path).(map[string]any); ok && len(obj) > 0 {
			return obj
		}
	}
	return nil
}

// maps keeps the object entries of a list. Plain strings become {"title": s}.
func maps(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, v)
		case string:
			if strings.TrimSpace(v) != "" {
				out = append(out, map[string]any{"title": v})
			}
		}
	}
	return out
}
