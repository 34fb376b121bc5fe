package tpl

import "testing"

func TestEnrichDoesNotMutateInput(t *testing.T) {
	content := map[string]any{
		"features": []any{map[string]any{"title": "Fast"}},
		"button":   map[string]any{"text": "Go"},
	}
	_ = Enrich(content)

	feature := content["features"].([]any)[0].(map[string]any)
	if _, ok := feature["icon"]; ok {
		t.Fatal("input feature was modified")
	}
	if _, ok := content["featuresCount"]; ok {
		t.Fatal("input map was modified")
	}
	if _, ok := content["button"].(map[string]any)["className"]; ok {
		t.Fatal("input button was modified")
	}
}

func TestEnrichListHelpersAndIcons(t *testing.T) {
	out := Enrich(map[string]any{
		"features": []any{
			map[string]any{"title": "Fast"},
			map[string]any{"title": "Safe", "icon": "lock"},
		},
		"team": []any{},
	})

	if out["featuresCount"] != 2 || out["hasFeatures"] != true {
		t.Fatalf("unexpected feature helpers: %v %v", out["featuresCount"], out["hasFeatures"])
	}
	if out["teamCount"] != 0 || out["hasTeam"] != false {
		t.Fatalf("unexpected team helpers: %v %v", out["teamCount"], out["hasTeam"])
	}

	items := out["features"].([]any)
	first := items[0].(map[string]any)
	if first["icon"] != DefaultIcons[0] || first["iconClass"] != "icon icon-"+DefaultIcons[0] {
		t.Fatalf("expected default icon, got %v / %v", first["icon"], first["iconClass"])
	}
	if second := items[1].(map[string]any); second["icon"] != "lock" {
		t.Fatalf("explicit icon overwritten: %v", second["icon"])
	}
}

func TestEnrichNavigationDefaults(t *testing.T) {
	out := Enrich(map[string]any{
		"navItems": []any{
			map[string]any{"text": "Home"},
			map[string]any{"label": "Docs", "url": "/docs", "target": "_blank"},
		},
	})
	items := out["navItems"].([]any)
	home := items[0].(map[string]any)
	if home["url"] != "#" || home["target"] != "_self" || home["label"] != "Home" {
		t.Fatalf("unexpected defaults: %v", home)
	}
	docs := items[1].(map[string]any)
	if docs["url"] != "/docs" || docs["target"] != "_blank" {
		t.Fatalf("explicit values overwritten: %v", docs)
	}
}

func TestEnrichButtons(t *testing.T) {
	out := Enrich(map[string]any{
		"button": map[string]any{"text": "Start", "variant": "secondary", "style": "brick", "radius": "pill"},
	})
	button := out["button"].(map[string]any)
	if button["isSecondary"] != true || button["isPrimary"] != false {
		t.Fatalf("unexpected variant flags: %v", button)
	}
	if button["url"] != "#" {
		t.Fatalf("expected default url, got %v", button["url"])
	}
	want := "btn btn-secondary btn-medium btn-radius-pill btn-style-brick"
	if button["className"] != want {
		t.Fatalf("expected %q, got %q", want, button["className"])
	}
}

func TestEnrichedTemplateRendering(t *testing.T) {
	tmpl := `{{#if hasFeatures}}<ul>{{#each features}}<li class="{{this.iconClass}}">{{this.title}}</li>{{/each}}</ul>{{/if}}`
	got := Render(tmpl, Enrich(map[string]any{"features": []any{map[string]any{"title": "Fast"}}}))
	want := `<ul><li class="icon icon-star">Fast</li></ul>`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := Render(tmpl, Enrich(map[string]any{})); got != "" {
		t.Fatalf("expected empty output without features, got %q", got)
	}
}
