package sitegen

import (
	"strings"

	"github.com/splax/localvercel/sites/internal/tpl"
)

var (
	buttonVariants = map[string]string{
		"primary":   "primary",
		"secondary": "secondary",
		"tertiary":  "tertiary",
		"text-link": "text-link",
		"textlink":  "text-link",
		"link":      "text-link",
	}
	buttonSizes  = map[string]bool{"small": true, "medium": true, "large": true}
	buttonRadii  = map[string]bool{"none": true, "small": true, "medium": true, "large": true, "pill": true}
	buttonStyles = map[string]bool{
		"default":           true,
		"floating":          true,
		"brick":             true,
		"modern":            true,
		"offset-background": true,
		"compact":           true,
	}
)

// Button is a call-to-action link with its visual modifiers.
type Button struct {
	Text    string
	URL     string
	Target  string
	Variant string
	Size    string
	Radius  string
	Style   string
	Icon    string
}

// buttonFrom reads a button object. Missing modifiers fall back to the
// section-level buttonStyle/buttonSize/buttonRadius settings.
func buttonFrom(obj map[string]any, defaults map[string]any) Button {
	if obj == nil {
		return Button{}
	}
	b := Button{
		Text:    fieldButtonText.String(obj),
		URL:     fieldButtonURL.String(obj),
		Target:  fieldNavTarget.String(obj),
		Variant: fieldButtonVariant.String(obj),
		Size:    fieldButtonSize.String(obj),
		Radius:  fieldButtonRadius.String(obj),
		Style:   fieldButtonStyle.String(obj),
		Icon:    fieldItemIcon.String(obj),
	}
	if b.Size == "" {
		b.Size = fieldDefaultSize.String(defaults)
	}
	if b.Radius == "" {
		b.Radius = fieldDefaultRadius.String(defaults)
	}
	if b.Style == "" {
		b.Style = fieldDefaultStyle.String(defaults)
	}
	return b
}

// sectionButtons collects the primary and secondary buttons of a section,
// including the flat buttonText/buttonUrl shape.
func sectionButtons(content, settings map[string]any) []Button {
	var out []Button
	if primary := buttonFrom(fieldPrimaryButton.Map(content), settings); primary.Text != "" {
		out = append(out, primary)
	} else if text := fieldCTAText.String(content); text != "" {
		out = append(out, Button{
			Text:  text,
			URL:   fieldCTAURL.String(content),
			Style: fieldDefaultStyle.String(settings),
			Size:  fieldDefaultSize.String(settings),
		})
	}
	if secondary := buttonFrom(fieldSecondaryButton.Map(content), settings); secondary.Text != "" {
		if secondary.Variant == "" {
			secondary.Variant = "secondary"
		}
		out = append(out, secondary)
	}
	return out
}

func (b Button) normalized() Button {
	if v, ok := buttonVariants[strings.ToLower(b.Variant)]; ok {
		b.Variant = v
	} else {
		b.Variant = "primary"
	}
	if !buttonSizes[b.Size] {
		b.Size = "medium"
	}
	if !buttonRadii[b.Radius] {
		b.Radius = ""
	}
	if !buttonStyles[b.Style] {
		b.Style = "default"
	}
	if b.URL == "" {
		b.URL = "#"
	}
	if b.Target == "" {
		b.Target = "_self"
	}
	return b
}

// renderButton is the single place buttons are turned into markup.
func renderButton(b Button) string {
	if strings.TrimSpace(b.Text) == "" {
		return ""
	}
	b = b.normalized()
	class := tpl.ButtonClass(b.Variant, b.Size, b.Radius, b.Style)
	if b.Icon != "" {
		class += " btn-with-icon"
	}

	var sb strings.Builder
	sb.WriteString(`<a href="`)
	sb.WriteString(attr(b.URL))
	sb.WriteString(`" class="`)
	sb.WriteString(class)
	sb.WriteString(`"`)
	if b.Target != "_self" {
		sb.WriteString(` target="`)
		sb.WriteString(attr(b.Target))
		sb.WriteString(`" rel="noopener noreferrer"`)
	}
	sb.WriteString(">")
	if b.Icon != "" {
		sb.WriteString(iconHTML(b.Icon))
	}
	sb.WriteString(`<span class="btn-text">`)
	sb.WriteString(text(b.Text))
	sb.WriteString("</span></a>")

	if b.Style != "offset-background" {
		return sb.String()
	}
	return `<div class="btn-offset-wrapper" style="position:relative;display:inline-block">` +
		sb.String() + `<span class="btn-offset-bg" aria-hidden="true"></span></div>`
}

func renderButtons(buttons []Button, class string) string {
	var parts []string
	for _, b := range buttons {
		if html := renderButton(b); html != "" {
			parts = append(parts, html)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return `<div class="` + class + `">` + strings.Join(parts, "") + `</div>`
}
