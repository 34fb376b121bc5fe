package tpl

import (
	"sort"
	"strings"
)

// DefaultIcons are assigned by position to list items that carry no icon.
var DefaultIcons = []string{"star", "check", "bolt", "heart", "shield", "globe"}

var (
	buttonKeys = []string{"button", "primaryButton", "secondaryButton", "ctaButton"}
	iconLists  = []string{"features", "services", "items", "cards", "benefits"}
	navLists   = []string{"navItems", "navigation", "links", "menuItems"}
)

// Enrich returns a copy of content with the computed helpers stored
// templates rely on: button flags and classes, icon defaults for item lists,
// navigation item defaults, and Count/has helpers for every list field.
// content is never modified.
func Enrich(content map[string]any) map[string]any {
	out := cloneMap(content)

	for _, key := range buttonKeys {
		if button, ok := out[key].(map[string]any); ok {
			enrichButton(button)
		}
	}
	if buttons, ok := out["buttons"].([]any); ok {
		for _, item := range buttons {
			if button, ok := item.(map[string]any); ok {
				enrichButton(button)
			}
		}
	}

	for _, key := range iconLists {
		items, ok := out[key].([]any)
		if !ok {
			continue
		}
		for i, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			icon, _ := entry["icon"].(string)
			if icon == "" {
				icon = DefaultIcons[i%len(DefaultIcons)]
				entry["icon"] = icon
			}
			entry["iconClass"] = "icon icon-" + icon
		}
	}

	for _, key := range navLists {
		items, ok := out[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if !Truthy(entry["url"]) {
				entry["url"] = "#"
			}
			if !Truthy(entry["target"]) {
				entry["target"] = "_self"
			}
			if !Truthy(entry["label"]) && Truthy(entry["text"]) {
				entry["label"] = entry["text"]
			}
		}
	}

	keys := make([]string, 0, len(out))
	for key := range out {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		items, ok := out[key].([]any)
		if !ok || key == "" {
			continue
		}
		out[key+"Count"] = len(items)
		out["has"+strings.ToUpper(key[:1])+key[1:]] = len(items) > 0
	}
	return out
}

func enrichButton(button map[string]any) {
	variant := stringOr(button["variant"], "primary")
	size := stringOr(button["size"], "medium")
	if !Truthy(button["url"]) {
		button["url"] = stringOr(button["link"], "#")
	}
	button["variant"] = variant
	button["size"] = size
	button["isPrimary"] = variant == "primary"
	button["isSecondary"] = variant == "secondary"
	button["isTertiary"] = variant == "tertiary"
	button["isTextLink"] = variant == "text-link"
	button["className"] = ButtonClass(variant, size, stringOr(button["radius"], ""), stringOr(button["style"], ""))
}

// ButtonClass builds the CSS class list for a button. Empty radius and style
// leave the corresponding modifier off.
func ButtonClass(variant, size, radius, style string) string {
	if variant == "" {
		variant = "primary"
	}
	if size == "" {
		size = "medium"
	}
	classes := []string{"btn", "btn-" + variant, "btn-" + size}
	if radius != "" {
		classes = append(classes, "btn-radius-"+radius)
	}
	if style != "" && style != "default" {
		classes = append(classes, "btn-style-"+style)
	}
	return strings.Join(classes, " ")
}

func stringOr(value any, fallback string) string {
	if s, ok := value.(string); ok && s != "" {
		return s
	}
	return fallback
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneMap(val[i])
		}
		return out
	}
	return v
}
