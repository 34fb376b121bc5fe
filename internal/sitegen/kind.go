package sitegen

import "strings"

// SectionKind is the closed set of section types with a built-in renderer.
type SectionKind int

const (
	KindUnknown SectionKind = iota
	KindHero
	KindText
	KindImage
	KindCards
	KindCTA
	KindFeatures
	KindTeam
	KindServicesGrid
	KindNavigation
	KindFooter
)

var kindNames = map[string]SectionKind{
	"hero":               KindHero,
	"text":               KindText,
	"rich-text":          KindText,
	"image":              KindImage,
	"cards":              KindCards,
	"cta":                KindCTA,
	"features":           KindFeatures,
	"team":               KindTeam,
	"services-grid":      KindServicesGrid,
	"services":           KindServicesGrid,
	"navigation":         KindNavigation,
	"navigation-desktop": KindNavigation,
	"footer":             KindFooter,
}

// KindOf maps a stored section type to its kind.
func KindOf(sectionType string) SectionKind {
	if kind, ok := kindNames[strings.ToLower(strings.TrimSpace(sectionType))]; ok {
		return kind
	}
	return KindUnknown
}

func (k SectionKind) String() string {
	switch k {
	case KindHero:
		return "hero"
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindCards:
		return "cards"
	case KindCTA:
		return "cta"
	case KindFeatures:
		return "features"
	case KindTeam:
		return "team"
	case KindServicesGrid:
		return "services-grid"
	case KindNavigation:
		return "navigation"
	case KindFooter:
		return "footer"
	default:
		return "unknown"
	}
}
