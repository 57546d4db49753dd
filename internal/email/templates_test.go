package email

import (
	"strings"
	"testing"
)

func TestRenderKnownTemplates(t *testing.T) {
	data := TemplateData{FirstName: "Jane", VehicleInterest: "2021 Outback"}

	for id := range templates {
		subject, html, err := Render(id, data)
		if err != nil {
			t.Fatalf("render %s: %v", id, err)
		}
		if subject == "" {
			t.Fatalf("template %s has no subject", id)
		}
		if !strings.Contains(html, "Jane") {
			t.Fatalf("template %s does not greet the lead", id)
		}
	}
}

func TestRenderFallsBackToGenericSalutation(t *testing.T) {
	_, html, err := Render("intro", TemplateData{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "Hi there") {
		t.Fatal("expected generic salutation for nameless lead")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, _, err := Render("nope", TemplateData{}); err == nil {
		t.Fatal("expected error for unknown template")
	}
	if KnownTemplate("nope") {
		t.Fatal("nope must not be a known template")
	}
	if !KnownTemplate("intro") {
		t.Fatal("intro must be a known template")
	}
}
