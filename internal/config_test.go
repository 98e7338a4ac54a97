package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/cardsync/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Anki.URL != "http://localhost:8765" || cfg.Anki.Version != 6 || cfg.Anki.Model != "Basic" {
		t.Errorf("anki defaults = %+v", cfg.Anki)
	}
	if cfg.Cards.DefaultDeck != "Default" || cfg.Vault.AssetFolder != "attachments" || cfg.Vault.DiagramFolder != "Excalidraw" {
		t.Errorf("card defaults = %+v %+v", cfg.Cards, cfg.Vault)
	}
}

func TestAnkiConfig_InvalidURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Anki.URL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid URL should fail validation")
	}
}

func TestCardsConfig_BadPattern(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Cards.ExclusionPattern = "(unclosed"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "regular expression") {
		t.Fatalf("err = %v", err)
	}
}

func TestCardsConfig_Pattern(t *testing.T) {
	c := CardsConfig{}
	if re, err := c.Pattern(); re != nil || err != nil {
		t.Errorf("empty pattern = %v, %v", re, err)
	}
	c.ExclusionPattern = `%%.*?%%`
	re, err := c.Pattern()
	if err != nil || !re.MatchString("a %%hidden%% b") {
		t.Errorf("pattern = %v, %v", re, err)
	}
}

func TestVaultConfig_LockPath(t *testing.T) {
	c := VaultConfig{Path: "/vault"}
	if got := c.LockPath(); got != filepath.Join("/vault", ".cardsync.lock") {
		t.Errorf("lock = %q", got)
	}
	c.LockFile = "/tmp/x.lock"
	if got := c.LockPath(); got != "/tmp/x.lock" {
		t.Errorf("lock = %q", got)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("CARDSYNC_TEST_VAULT", "/notes")
	p := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  log_level: debug
  http:
    port: 9090
vault:
  path: ${CARDSYNC_TEST_VAULT}
  target_folder: cards
anki:
  timeout: 3s
  requests_per_second: 5
cards:
  exclude_tags: [draft]
  ignore_tags: ["#flashcard"]
  skip_unchanged: true
watch:
  debounce: 250ms
`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(p, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Vault.Path != "/notes" || cfg.Vault.TargetFolder != "cards" {
		t.Errorf("vault = %+v", cfg.Vault)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Anki.Timeout != 3*time.Second || cfg.Anki.RequestsPerSecond != 5 || cfg.Anki.URL != "http://localhost:8765" {
		t.Errorf("anki = %+v", cfg.Anki)
	}
	if len(cfg.Cards.ExcludeTags) != 1 || !cfg.Cards.SkipUnchanged || cfg.Cards.DefaultDeck != "Default" {
		t.Errorf("cards = %+v", cfg.Cards)
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watch.Debounce)
	}
}
