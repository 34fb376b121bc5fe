package sitegen

import (
	"strings"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/tpl"
)

// styleVar maps a site-style field to a CSS custom property.
type styleVar struct {
	field    string
	property string
	fallback string
	unit     string
}

var baseStyleVars = []styleVar{
	{"primaryColor", "--color-primary", "#2563eb", ""},
	{"secondaryColor", "--color-secondary", "#64748b", ""},
	{"accentColor", "--color-accent", "#f59e0b", ""},
	{"backgroundColor", "--color-background", "#ffffff", ""},
	{"surfaceColor", "--color-surface", "#f8fafc", ""},
	{"textColor", "--color-text", "#1f2937", ""},
	{"headingColor", "--color-heading", "#111827", ""},
	{"mutedTextColor", "--color-muted", "#6b7280", ""},
	{"linkColor", "--color-link", "var(--color-primary)", ""},
	{"borderColor", "--color-border", "#e5e7eb", ""},

	{"fontFamily", "--font-body", "system-ui, -apple-system, 'Segoe UI', Roboto, sans-serif", ""},
	{"headingFontFamily", "--font-heading", "var(--font-body)", ""},
	{"baseFontSize", "--font-size-base", "16px", "px"},
	{"h1Size", "--font-size-h1", "3rem", "rem"},
	{"h2Size", "--font-size-h2", "2.25rem", "rem"},
	{"h3Size", "--font-size-h3", "1.5rem", "rem"},
	{"lineHeight", "--line-height", "1.6", ""},
	{"headingWeight", "--font-weight-heading", "700", ""},

	{"containerWidth", "--container-width", "1200px", "px"},
	{"sectionPadding", "--section-padding", "80px", "px"},
	{"gridGap", "--grid-gap", "24px", "px"},
	{"borderRadius", "--radius", "8px", "px"},
}

type buttonTier struct {
	name       string
	background string
	text       string
	border     string
}

var buttonTiers = []buttonTier{
	{"primary", "var(--color-primary)", "#ffffff", "var(--color-primary)"},
	{"secondary", "transparent", "var(--color-primary)", "var(--color-primary)"},
	{"tertiary", "var(--color-surface)", "var(--color-text)", "var(--color-border)"},
}

// styleVars returns the full ordered variable list, including the
// per-tier button variables.
func styleVars() []styleVar {
	vars := make([]styleVar, 0, len(baseStyleVars)+len(buttonTiers)*6)
	vars = append(vars, baseStyleVars...)
	for _, tier := range buttonTiers {
		prefix := tier.name + "Button"
		prop := "--btn-" + tier.name
		vars = append(vars,
			styleVar{prefix + "Background", prop + "-bg", tier.background, ""},
			styleVar{prefix + "Text", prop + "-text", tier.text, ""},
			styleVar{prefix + "Border", prop + "-border", tier.border, ""},
			styleVar{prefix + "HoverBackground", prop + "-hover-bg", "color-mix(in srgb, var(" + prop + "-bg), #000 12%)", ""},
			styleVar{prefix + "HoverText", prop + "-hover-text", "var(" + prop + "-text)", ""},
			styleVar{prefix + "Shadow", prop + "-shadow", "none", ""},
		)
	}
	return vars
}

// mainCSS renders the custom properties derived from styles followed by the
// baseline stylesheet.
func mainCSS(styles domain.SiteStyles) string {
	var b strings.Builder
	b.WriteString(":root {\n")
	for _, v := range styleVars() {
		value := styleValue(styles, v)
		b.WriteString("  " + v.property + ": " + value + ";\n")
	}
	b.WriteString("}\n\n")
	b.WriteString(baseCSS)
	return b.String()
}

func styleValue(styles domain.SiteStyles, v styleVar) string {
	raw, ok := styles[v.field]
	if !ok || !tpl.Truthy(raw) {
		return v.fallback
	}
	switch val := raw.(type) {
	case string:
		if s := cssValue(val); s != "" {
			return s
		}
		return v.fallback
	case float64, int, int64:
		s := tpl.Stringify(val)
		if v.unit != "" {
			s += v.unit
		}
		return s
	}
	return v.fallback
}

const baseCSS = `*, *::before, *::after { box-sizing: border-box; }
html { -webkit-text-size-adjust: 100%; scroll-behavior: smooth; }
body {
  margin: 0;
  font-family: var(--font-body);
  font-size: var(--font-size-base);
  line-height: var(--line-height);
  color: var(--color-text);
  background: var(--color-background);
}
img, picture, video, svg { display: block; max-width: 100%; height: auto; }
h1, h2, h3, h4, h5, h6 {
  margin: 0 0 0.5em;
  font-family: var(--font-heading);
  font-weight: var(--font-weight-heading);
  line-height: 1.2;
  color: var(--color-heading);
}
h1 { font-size: var(--font-size-h1); }
h2 { font-size: var(--font-size-h2); }
h3 { font-size: var(--font-size-h3); }
p { margin: 0 0 1em; }
a { color: var(--color-link); }
ul { margin: 0; padding: 0; }
.container { width: 100%; max-width: var(--container-width); margin: 0 auto; padding: 0 20px; }
.section { padding: var(--section-padding) 0; }
.section-heading { text-align: center; }
.section-subheading { text-align: center; color: var(--color-muted); max-width: 720px; margin: 0 auto 2em; }
.text-center { text-align: center; }
.sr-only { position: absolute; width: 1px; height: 1px; overflow: hidden; clip: rect(0 0 0 0); white-space: nowrap; }
`

const componentsCSS = `/* hero */
.hero { position: relative; background-size: cover; background-position: center; }
.hero-content { display: flex; flex-direction: column; gap: 16px; }
.hero-centered .hero-content { align-items: center; text-align: center; }
.hero-left .hero-content { align-items: flex-start; text-align: left; }
.hero-split .hero-content { display: grid; grid-template-columns: 1fr 1fr; align-items: center; }
.hero-heading { font-size: var(--font-size-h1); }
.hero-subheading { font-size: 1.25rem; color: var(--color-muted); max-width: 680px; }
.hero-buttons, .cta-buttons, .card-actions, .nav-actions { display: flex; flex-wrap: wrap; gap: 12px; }

/* buttons */
.btn { display: inline-flex; align-items: center; gap: 8px; font-weight: 600; text-decoration: none; border: 2px solid transparent; border-radius: var(--radius); cursor: pointer; transition: background 0.2s, color 0.2s, box-shadow 0.2s, transform 0.2s; }
.btn-primary { background: var(--btn-primary-bg); color: var(--btn-primary-text); border-color: var(--btn-primary-border); box-shadow: var(--btn-primary-shadow); }
.btn-primary:hover { background: var(--btn-primary-hover-bg); color: var(--btn-primary-hover-text); }
.btn-secondary { background: var(--btn-secondary-bg); color: var(--btn-secondary-text); border-color: var(--btn-secondary-border); box-shadow: var(--btn-secondary-shadow); }
.btn-secondary:hover { background: var(--btn-secondary-hover-bg); color: var(--btn-secondary-hover-text); }
.btn-tertiary { background: var(--btn-tertiary-bg); color: var(--btn-tertiary-text); border-color: var(--btn-tertiary-border); box-shadow: var(--btn-tertiary-shadow); }
.btn-tertiary:hover { background: var(--btn-tertiary-hover-bg); color: var(--btn-tertiary-hover-text); }
.btn-text-link { background: none; border: none; padding: 0; color: var(--color-link); text-decoration: underline; }
.btn-small { padding: 6px 14px; font-size: 0.875rem; }
.btn-medium { padding: 10px 22px; font-size: 1rem; }
.btn-large { padding: 14px 30px; font-size: 1.125rem; }
.btn-radius-none { border-radius: 0; }
.btn-radius-small { border-radius: 4px; }
.btn-radius-medium { border-radius: 8px; }
.btn-radius-large { border-radius: 16px; }
.btn-radius-pill { border-radius: 999px; }
.btn-style-floating { box-shadow: 0 10px 25px rgba(0, 0, 0, 0.15); }
.btn-style-floating:hover { transform: translateY(-2px); }
.btn-style-brick { border-radius: 0; box-shadow: 4px 4px 0 var(--color-heading); }
.btn-style-brick:hover { transform: translate(2px, 2px); box-shadow: 2px 2px 0 var(--color-heading); }
.btn-style-modern { letter-spacing: 0.04em; text-transform: uppercase; }
.btn-style-compact { padding: 4px 12px; font-size: 0.8125rem; }
.btn-offset-wrapper { position: relative; display: inline-block; }
.btn-offset-wrapper .btn { position: relative; z-index: 1; }
.btn-offset-bg { position: absolute; inset: 0; transform: translate(6px, 6px); border: 2px solid var(--color-heading); border-radius: var(--radius); z-index: 0; }
.btn-with-icon .icon { width: 1em; height: 1em; }

/* grids and cards */
.grid { display: grid; gap: var(--grid-gap); }
.grid-cols-1 { grid-template-columns: 1fr; }
.grid-cols-2 { grid-template-columns: repeat(2, 1fr); }
.grid-cols-3 { grid-template-columns: repeat(3, 1fr); }
.grid-cols-4 { grid-template-columns: repeat(4, 1fr); }
.card { background: var(--color-surface); border: 1px solid var(--color-border); border-radius: var(--radius); overflow: hidden; display: flex; flex-direction: column; }
.card-image { width: 100%; aspect-ratio: 16 / 9; object-fit: cover; }
.card-body { padding: 20px; display: flex; flex-direction: column; gap: 8px; flex: 1; }
.card-title { margin: 0; }

/* features, team, services */
.feature, .service { padding: 24px; border-radius: var(--radius); background: var(--color-surface); }
.feature-title, .service-title { margin-top: 12px; }
.service-price { font-weight: 700; color: var(--color-primary); }
.team-member { text-align: center; }
.team-photo { width: 160px; height: 160px; border-radius: 50%; object-fit: cover; margin: 0 auto 12px; }
.team-role { color: var(--color-muted); }

/* icons */
.icon { display: inline-block; width: 40px; height: 40px; border-radius: 50%; background: var(--color-primary); opacity: 0.9; }
.feature .icon, .service .icon { mask-size: 60%; mask-repeat: no-repeat; mask-position: center; }

/* navigation */
.site-header { position: sticky; top: 0; z-index: 50; background: var(--color-background); border-bottom: 1px solid var(--color-border); }
.nav { display: flex; align-items: center; justify-content: space-between; gap: 24px; min-height: 64px; }
.nav-logo { font-weight: 700; font-size: 1.25rem; text-decoration: none; color: var(--color-heading); }
.nav-logo img { max-height: 40px; }
.nav-links { display: flex; gap: 20px; list-style: none; }
.nav-links a { text-decoration: none; color: var(--color-text); }
.nav-links a:hover { color: var(--color-primary); }

/* cta, text, image */
.cta { background: var(--color-primary); color: #ffffff; text-align: center; }
.cta .cta-heading { color: inherit; }
.cta-content { display: flex; flex-direction: column; align-items: center; gap: 16px; }
.text-content { max-width: 800px; }
.image-figure { margin: 0; }
.image-figure img { width: 100%; border-radius: var(--radius); }
.image-figure figcaption { margin-top: 8px; color: var(--color-muted); text-align: center; }
.generic-list { padding-left: 1.25em; }

/* footer */
.site-footer { padding: 48px 0; background: var(--color-surface); border-top: 1px solid var(--color-border); }
.footer-content { display: flex; flex-direction: column; gap: 12px; align-items: center; text-align: center; }
.footer-links { display: flex; flex-wrap: wrap; gap: 16px; list-style: none; }
.footer-copyright { color: var(--color-muted); font-size: 0.875rem; }

/* responsive */
@media (max-width: 1024px) {
  .grid-cols-4 { grid-template-columns: repeat(2, 1fr); }
}
@media (max-width: 768px) {
  .grid-cols-2, .grid-cols-3, .grid-cols-4 { grid-template-columns: 1fr; }
  .hero-split .hero-content { grid-template-columns: 1fr; }
  .nav { flex-wrap: wrap; }
  .nav-links { flex-wrap: wrap; gap: 12px; }
  :root { --section-padding: 48px; --font-size-h1: 2.25rem; --font-size-h2: 1.75rem; }
}
`
