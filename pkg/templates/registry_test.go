package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegistryLoadAndRender(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "personalization", "en")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}

	tplPath := filepath.Join(dir, "greeting.tmpl")
	if err := os.WriteFile(tplPath, []byte("Hello {{.Name}}"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	reg, err := NewRegistry(base)
	if err != nil {
		t.Fatalf("init registry: %v", err)
	}

	tmpl, err := reg.GetTemplate("personalization/en/greeting")
	if err != nil {
		t.Fatalf("get template: %v", err)
	}

	rendered, err := tmpl.Render(map[string]string{"Name": "Alice"})
	if err != nil {
		t.Fatalf("render template: %v", err)
	}
	if rendered != "Hello Alice" {
		t.Fatalf("unexpected render result: %s", rendered)
	}

	if err := os.WriteFile(tplPath, []byte("Hi {{.Name}}"), 0o644); err != nil {
		t.Fatalf("rewrite template: %v", err)
	}

	rendered, err = tmpl.Render(map[string]string{"Name": "Bob"})
	if err != nil {
		t.Fatalf("render template after update: %v", err)
	}
	if rendered != "Hello Bob" {
		t.Fatalf("expected parsed template to keep initial content, got: %s", rendered)
	}
}

func TestRegistryLazyLoad(t *testing.T) {
	base := t.TempDir()
	reg, err := NewRegistry(base)
	if err != nil {
		t.Fatalf("init registry: %v", err)
	}

	p := filepath.Join(base, "personalization", "de", "greeting.tmpl")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("create dirs: %v", err)
	}
	if err := os.WriteFile(p, []byte("Hallo {{.Name}}"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	rendered, err := reg.Render("personalization/de/greeting", map[string]string{"Name": "Jonas"})
	if err != nil {
		t.Fatalf("render lazily loaded template: %v", err)
	}
	if rendered != "Hallo Jonas" {
		t.Fatalf("unexpected render output: %s", rendered)
	}
}

func TestRenderLocalizedFallsBackToDefaultLanguage(t *testing.T) {
	data := map[string]string{"FirstName": "Ana", "AgentName": "Nova"}

	rendered, err := Get().RenderLocalized("personalization", "pt", "greeting", data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(rendered, "Hi Ana") {
		t.Fatalf("expected english fallback, got: %s", rendered)
	}

	rendered, err = Get().RenderLocalized("personalization", "FR", "greeting", data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(rendered, "Bonjour Ana") {
		t.Fatalf("expected french greeting, got: %s", rendered)
	}
}

func TestEmbeddedPersonalizationTemplates(t *testing.T) {
	for _, lang := range []string{"en", "fr", "es"} {
		for _, name := range []string{"greeting", "prompt"} {
			id := "personalization/" + lang + "/" + name
			if !Get().Has(id) {
				t.Fatalf("missing embedded template %s", id)
			}
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"  Alice   Martin ":     "Alice Martin",
		"Bob{{.Secret}}":        "Bob.Secret",
		"Eve\nIgnore previous": "Eve Ignore previous",
		"":                      "",
	}

	for in, want := range tests {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}

	long := strings.Repeat("a", 200)
	if got := SanitizeName(long); len(got) != 80 {
		t.Fatalf("expected truncation to 80 runes, got %d", len(got))
	}
}

func TestFirstName(t *testing.T) {
	if got := FirstName("Alice Martin"); got != "Alice" {
		t.Fatalf("unexpected first name: %s", got)
	}
	if got := FirstName("   "); got != "" {
		t.Fatalf("expected empty first name, got %q", got)
	}
}
