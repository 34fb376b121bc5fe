package sitegen

import (
	"html"
	"sort"
	"strings"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/tpl"
)

// renderBuiltin dispatches a section to the renderer of its kind.
func renderBuiltin(s domain.Section, projectName string) string {
	content := s.Content
	if content == nil {
		content = map[string]any{}
	}
	settings := s.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	switch KindOf(s.Type) {
	case KindHero:
		return renderHero(s, content, settings)
	case KindText:
		return renderText(s, content, settings)
	case KindImage:
		return renderImage(s, content, settings)
	case KindCards:
		return renderCards(s, content, settings)
	case KindCTA:
		return renderCTA(s, content, settings)
	case KindFeatures:
		return renderFeatures(s, content, settings)
	case KindTeam:
		return renderTeam(s, content, settings)
	case KindServicesGrid:
		return renderServices(s, content, settings)
	case KindNavigation:
		return renderNavigation(s, content, settings, projectName)
	case KindFooter:
		return renderFooter(s, content, settings, projectName)
	default:
		return renderGeneric(s, content, settings)
	}
}

func renderHero(s domain.Section, content, settings map[string]any) string {
	layout := fieldLayout.String(settings)
	if layout == "" {
		layout = fieldLayout.String(content)
	}
	switch layout {
	case "left", "split", "centered":
	default:
		layout = "centered"
	}

	var b strings.Builder
	style := sectionStyle(settings)
	if img := fieldHeroImage.String(content); img != "" {
		style += "background-image:url('" + cssURL(img) + "');"
	}
	b.WriteString(openSection(s, "hero hero-"+layout, style))
	b.WriteString(`<div class="container hero-content">`)
	if heading := fieldHeroHeading.String(content); heading != "" {
		b.WriteString(`<h1 class="hero-heading">` + text(heading) + `</h1>`)
	}
	if sub := fieldHeroSubheading.String(content); sub != "" {
		b.WriteString(`<p class="hero-subheading">` + text(sub) + `</p>`)
	}
	b.WriteString(renderButtons(sectionButtons(content, settings), "hero-buttons"))
	b.WriteString(`</div></section>`)
	return b.String()
}

func renderText(s domain.Section, content, settings map[string]any) string {
	var b strings.Builder
	b.WriteString(openSection(s, "text-section", sectionStyle(settings)))
	b.WriteString(`<div class="container text-content">`)
	writeHeading(&b, content, "h2", "section-heading")
	if body := fieldBody.String(content); body != "" {
		b.WriteString(richText(body))
	}
	b.WriteString(`</div></section>`)
	return b.String()
}

func renderImage(s domain.Section, content, settings map[string]any) string {
	src := fieldImageURL.String(content)
	if src == "" {
		return renderGeneric(s, content, settings)
	}
	var b strings.Builder
	b.WriteString(openSection(s, "image-section", sectionStyle(settings)))
	b.WriteString(`<div class="container"><figure class="image-figure">`)
	b.WriteString(`<img src="` + attr(src) + `" alt="` + attr(fieldImageAlt.String(content)) + `" loading="lazy">`)
	if caption := fieldCaption.String(content); caption != "" {
		b.WriteString(`<figcaption>` + text(caption) + `</figcaption>`)
	}
	b.WriteString(`</figure></div></section>`)
	return b.String()
}

func renderCards(s domain.Section, content, settings map[string]any) string {
	var b strings.Builder
	b.WriteString(openSection(s, "cards-section", sectionStyle(settings)))
	b.WriteString(`<div class="container">`)
	writeHeading(&b, content, "h2", "section-heading")
	writeSubheading(&b, content)
	b.WriteString(`<div class="grid ` + gridClass(settings, 3) + `">`)
	for _, card := range maps(fieldCards.List(content)) {
		b.WriteString(`<article class="card">`)
		if img := fieldItemImage.String(card); img != "" {
			b.WriteString(`<img class="card-image" src="` + attr(img) + `" alt="` + attr(fieldItemTitle.String(card)) + `" loading="lazy">`)
		}
		b.WriteString(`<div class="card-body">`)
		if title := fieldItemTitle.String(card); title != "" {
			b.WriteString(`<h3 class="card-title">` + text(title) + `</h3>`)
		}
		if desc := fieldItemText.String(card); desc != "" {
			b.WriteString(`<p class="card-text">` + text(desc) + `</p>`)
		}
		b.WriteString(renderButtons(sectionButtons(card, settings), "card-actions"))
		b.WriteString(`</div></article>`)
	}
	b.WriteString(`</div></div></section>`)
	return b.String()
}

func renderCTA(s domain.Section, content, settings map[string]any) string {
	var b strings.Builder
	b.WriteString(openSection(s, "cta", sectionStyle(settings)))
	b.WriteString(`<div class="container cta-content">`)
	writeHeading(&b, content, "h2", "cta-heading")
	if desc := fieldCTADescription.String(content); desc != "" {
		b.WriteString(`<p class="cta-text">` + text(desc) + `</p>`)
	}
	b.WriteString(renderButtons(sectionButtons(content, settings), "cta-buttons"))
	b.WriteString(`</div></section>`)
	return b.String()
}

func renderFeatures(s domain.Section, content, settings map[string]any) string {
	var b strings.Builder
	b.WriteString(openSection(s, "features", sectionStyle(settings)))
	b.WriteString(`<div class="container">`)
	writeHeading(&b, content, "h2", "section-heading")
	writeSubheading(&b, content)
	b.WriteString(`<div class="grid ` + gridClass(settings, 3) + `">`)
	for i, item := range maps(fieldFeatures.List(content)) {
		icon := fieldItemIcon.String(item)
		if icon == "" {
			icon = tpl.DefaultIcons[i%len(tpl.DefaultIcons)]
		}
		b.WriteString(`<div class="feature">`)
		b.WriteString(iconHTML(icon))
		if title := fieldItemTitle.String(item); title != "" {
			b.WriteString(`<h3 class="feature-title">` + text(title) + `</h3>`)
		}
		if desc := fieldItemText.String(item); desc != "" {
			b.WriteString(`<p class="feature-text">` + text(desc) + `</p>`)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div></div></section>`)
	return b.String()
}

func renderTeam(s domain.Section, content, settings map[string]any) string {
	var b strings.Builder
	b.WriteString(openSection(s, "team", sectionStyle(settings)))
	b.WriteString(`<div class="container">`)
	writeHeading(&b, content, "h2", "section-heading")
	writeSubheading(&b, content)
	b.WriteString(`<div class="grid team-grid ` + gridClass(settings, 4) + `">`)
	for _, member := range maps(fieldMembers.List(content)) {
		name := fieldMemberName.String(member)
		b.WriteString(`<div class="team-member">`)
		if photo := fieldItemImage.String(member); photo != "" {
			b.WriteString(`<img class="team-photo" src="` + attr(photo) + `" alt="` + attr(name) + `" loading="lazy">`)
		}
		if name != "" {
			b.WriteString(`<h3 class="team-name">` + text(name) + `</h3>`)
		}
		if role := fieldMemberRole.String(member); role != "" {
			b.WriteString(`<p class="team-role">` + text(role) + `</p>`)
		}
		if bio := fieldMemberBio.String(member); bio != "" {
			b.WriteString(`<p class="team-bio">` + text(bio) + `</p>`)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div></div></section>`)
	return b.String()
}

func renderServices(s domain.Section, content, settings map[string]any) string {
	var b strings.Builder
	b.WriteString(openSection(s, "services", sectionStyle(settings)))
	b.WriteString(`<div class="container">`)
	writeHeading(&b, content, "h2", "section-heading")
	writeSubheading(&b, content)
	b.WriteString(`<div class="grid services-grid ` + gridClass(settings, 3) + `">`)
	for _, svc := range maps(fieldServices.List(content)) {
		b.WriteString(`<div class="service">`)
		if icon := fieldItemIcon.String(svc); icon != "" {
			b.WriteString(iconHTML(icon))
		}
		if title := fieldItemTitle.String(svc); title != "" {
			b.WriteString(`<h3 class="service-title">` + text(title) + `</h3>`)
		}
		if desc := fieldItemText.String(svc); desc != "" {
			b.WriteString(`<p class="service-text">` + text(desc) + `</p>`)
		}
		if price := fieldItemPrice.String(svc); price != "" {
			b.WriteString(`<p class="service-price">` + text(price) + `</p>`)
		}
		if link := fieldItemLink.String(svc); link != "" {
			b.WriteString(renderButton(Button{Text: "Learn more", URL: link, Variant: "text-link"}))
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div></div></section>`)
	return b.String()
}

func renderNavigation(s domain.Section, content, settings map[string]any, projectName string) string {
	var b strings.Builder
	b.WriteString(`<header id="` + attr(sectionID(s)) + `" class="site-header"` + styleAttr(sectionStyle(settings)) + `>`)
	b.WriteString(`<nav class="nav container">`)
	b.WriteString(`<a class="nav-logo" href="index.html">`)
	logoText := fieldLogoText.String(content)
	if logoText == "" {
		logoText = projectName
	}
	if logo := fieldLogoImage.String(content); logo != "" {
		b.WriteString(`<img src="` + attr(logo) + `" alt="` + attr(logoText) + `">`)
	} else {
		b.WriteString(text(logoText))
	}
	b.WriteString(`</a>`)
	b.WriteString(navList(fieldNavItems.List(content), "nav-links"))
	b.WriteString(renderButtons(sectionButtons(content, settings), "nav-actions"))
	b.WriteString(`</nav></header>`)
	return b.String()
}

func renderFooter(s domain.Section, content, settings map[string]any, projectName string) string {
	var b strings.Builder
	b.WriteString(`<footer id="` + attr(sectionID(s)) + `" class="site-footer"` + styleAttr(sectionStyle(settings)) + `>`)
	b.WriteString(`<div class="container footer-content">`)
	if logo := fieldLogoText.String(content); logo != "" {
		b.WriteString(`<p class="footer-brand">` + text(logo) + `</p>`)
	}
	if desc := fieldDescription.String(content); desc != "" {
		b.WriteString(`<p class="footer-text">` + text(desc) + `</p>`)
	}
	b.WriteString(navList(fieldLinks.List(content), "footer-links"))
	copyright := fieldCopyright.String(content)
	if copyright == "" && projectName != "" {
		copyright = "© " + projectName
	}
	if copyright != "" {
		b.WriteString(`<p class="footer-copyright">` + text(copyright) + `</p>`)
	}
	b.WriteString(`</div></footer>`)
	return b.String()
}

// renderGeneric keeps whatever text and list structure an unrecognised
// section carries instead of dropping it.
func renderGeneric(s domain.Section, content, settings map[string]any) string {
	slug := domain.Slugify(s.Type)
	if slug == "" {
		slug = "unknown"
	}
	var b strings.Builder
	b.WriteString(openSection(s, "section-generic section-"+slug, sectionStyle(settings)))
	b.WriteString(`<div class="container">`)

	heading := fieldHeading.String(content)
	if heading != "" {
		b.WriteString(`<h2 class="section-heading">` + text(heading) + `</h2>`)
	}

	keys := make([]string, 0, len(content))
	for key := range content {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if skipGenericKey(key) {
			continue
		}
		switch v := content[key].(type) {
		case string:
			v = strings.TrimSpace(v)
			if v == "" || v == heading {
				continue
			}
			if isImageKey(key) && looksLikeURL(v) {
				b.WriteString(`<img src="` + attr(v) + `" alt="" loading="lazy">`)
				continue
			}
			if looksLikeURL(v) {
				continue
			}
			b.WriteString(`<p>` + text(v) + `</p>`)
		case map[string]any:
			if t := fieldObjectText.String(v); t != "" && t != heading {
				b.WriteString(`<p>` + text(t) + `</p>`)
			}
		case []any:
			b.WriteString(genericList(v))
		}
	}
	b.WriteString(`</div></section>`)
	return b.String()
}

func genericList(items []any) string {
	var lis []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				lis = append(lis, `<li>`+text(v)+`</li>`)
			}
		case map[string]any:
			title := fieldItemTitle.String(v)
			desc := fieldItemText.String(v)
			switch {
			case title != "" && desc != "":
				lis = append(lis, `<li><strong>`+text(title)+`</strong> `+text(desc)+`</li>`)
			case title != "":
				lis = append(lis, `<li>`+text(title)+`</li>`)
			case desc != "":
				lis = append(lis, `<li>`+text(desc)+`</li>`)
			}
		}
	}
	if len(lis) == 0 {
		return ""
	}
	return `<ul class="generic-list">` + strings.Join(lis, "") + `</ul>`
}

func skipGenericKey(key string) bool {
	if strings.HasPrefix(key, "_") {
		return true
	}
	lower := strings.ToLower(key)
	switch lower {
	case "id", "type", "heading", "title", "variant", "layout", "style", "classname":
		return true
	}
	return strings.HasSuffix(lower, "color") || (strings.HasSuffix(lower, "url") && !isImageKey(key))
}

func navList(items []any, class string) string {
	entries := maps(items)
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<ul class="` + class + `">`)
	for _, item := range entries {
		label := fieldNavLabel.String(item)
		if label == "" {
			continue
		}
		url := fieldNavURL.String(item)
		if url == "" {
			url = "#"
		}
		b.WriteString(`<li><a href="` + attr(url) + `"`)
		if target := fieldNavTarget.String(item); target != "" && target != "_self" {
			b.WriteString(` target="` + attr(target) + `" rel="noopener noreferrer"`)
		}
		b.WriteString(`>` + text(label) + `</a></li>`)
	}
	b.WriteString(`</ul>`)
	return b.String()
}

func writeHeading(b *strings.Builder, content map[string]any, tag, class string) {
	if heading := fieldHeading.String(content); heading != "" {
		b.WriteString(`<` + tag + ` class="` + class + `">` + text(heading) + `</` + tag + `>`)
	}
}

func writeSubheading(b *strings.Builder, content map[string]any) {
	if sub := fieldSubheading.String(content); sub != "" {
		b.WriteString(`<p class="section-subheading">` + text(sub) + `</p>`)
	}
}

func openSection(s domain.Section, class, style string) string {
	return `<section id="` + attr(sectionID(s)) + `" class="section ` + class + `"` + styleAttr(style) + `>`
}

func sectionID(s domain.Section) string {
	if s.ID != "" {
		return "section-" + s.ID
	}
	return "section-" + domain.Slugify(s.Type)
}

func sectionStyle(settings map[string]any) string {
	var style string
	if bg := fieldBackground.String(settings); bg != "" {
		style += "background-color:" + cssValue(bg) + ";"
	}
	if fg := fieldForeground.String(settings); fg != "" {
		style += "color:" + cssValue(fg) + ";"
	}
	return style
}

func styleAttr(style string) string {
	if style == "" {
		return ""
	}
	return ` style="` + attr(style) + `"`
}

func gridClass(settings map[string]any, fallback int) string {
	switch cols := fieldColumns.String(settings); cols {
	case "1", "2", "3", "4":
		return "grid-cols-" + cols
	}
	return "grid-cols-" + string(rune('0'+fallback))
}

func iconHTML(name string) string {
	return `<span class="icon icon-` + attr(domain.Slugify(name)) + `" aria-hidden="true"></span>`
}

// richText keeps editor HTML as stored and wraps plain text in paragraphs.
func richText(body string) string {
	if strings.Contains(body, "<") && strings.Contains(body, ">") {
		return `<div class="rich-text">` + body + `</div>`
	}
	var b strings.Builder
	for _, para := range strings.Split(body, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			b.WriteString(`<p>` + strings.ReplaceAll(text(para), "\n", "<br>") + `</p>`)
		}
	}
	return b.String()
}

func text(s string) string { return html.EscapeString(s) }

func attr(s string) string { return html.EscapeString(s) }

func cssURL(s string) string {
	return strings.NewReplacer("'", "%27", "(", "%28", ")", "%29", "\n", "", "\r", "").Replace(s)
}

// cssValue drops characters that could close a declaration or the style
// attribute.
func cssValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ';', '{', '}', '<', '>', '"', '\'', '\n', '\r':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
