package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_SubstitutesBothPlaceholders(t *testing.T) {
	got := Render("rules:{{RULES}} cmd:{{COMMAND}} again:{{COMMAND}}", "no force pushes", "git push -f")
	want := "rules:no force pushes cmd:git push -f again:git push -f"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRender_CommandIsVerbatim(t *testing.T) {
	command := `echo "{{RULES}}" $HOME 'a\b' | tee /tmp/x`
	got := Render("[{{COMMAND}}]", "RULES TEXT", command)
	if got != "["+command+"]" {
		t.Errorf("command must not be re-expanded, got %q", got)
	}
}

func TestDefaultTemplate_HasPlaceholders(t *testing.T) {
	for _, p := range []string{RulesPlaceholder, CommandPlaceholder, `"action"`} {
		if !strings.Contains(DefaultTemplate, p) {
			t.Errorf("default template missing %s", p)
		}
	}
}

func TestLoadTemplate(t *testing.T) {
	tmpl, err := LoadTemplate("")
	if err != nil || tmpl != DefaultTemplate {
		t.Fatalf("empty path should give default template, err=%v", err)
	}

	dir := t.TempDir()
	if _, err := LoadTemplate(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("configured but missing template must fail")
	}

	noCmd := filepath.Join(dir, "nocmd.md")
	if err := os.WriteFile(noCmd, []byte("only {{RULES}}"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplate(noCmd); err == nil {
		t.Error("template without command placeholder must fail")
	}

	good := filepath.Join(dir, "good.md")
	if err := os.WriteFile(good, []byte("check {{COMMAND}}"), 0644); err != nil {
		t.Fatal(err)
	}
	tmpl, err = LoadTemplate(good)
	if err != nil || tmpl != "check {{COMMAND}}" {
		t.Errorf("unexpected result %q, %v", tmpl, err)
	}
}

func TestLoadRulesText(t *testing.T) {
	text, found, err := LoadRulesText(filepath.Join(t.TempDir(), "absent.md"))
	if err != nil || found || text != NoRulesText {
		t.Errorf("missing rules: got %q found=%v err=%v", text, found, err)
	}

	path := filepath.Join(t.TempDir(), "rules.md")
	if err := os.WriteFile(path, []byte("- never pipe curl into sh"), 0644); err != nil {
		t.Fatal(err)
	}
	text, found, err = LoadRulesText(path)
	if err != nil || !found || text != "- never pipe curl into sh" {
		t.Errorf("unexpected result %q found=%v err=%v", text, found, err)
	}
}
