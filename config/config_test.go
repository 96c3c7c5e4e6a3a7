package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigJSONOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"bot": {"admin_id": "375291234567@s.whatsapp.net", "manager_chat_id": "123@g.us"},
		"rating": {"prompt_delay": "90s"},
		"leads": {"inactivity_window": 600}
	}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Rating.PromptDelay.Std() != 90*time.Second {
		t.Errorf("PromptDelay = %v", cfg.Rating.PromptDelay)
	}
	if cfg.Rating.Expiry.Std() != 10*time.Minute {
		t.Errorf("Expiry default lost: %v", cfg.Rating.Expiry)
	}
	if cfg.Leads.InactivityWindow.Std() != 10*time.Minute {
		t.Errorf("InactivityWindow = %v", cfg.Leads.InactivityWindow)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
bot:
  admin_id: "375291234567@s.whatsapp.net"
  manager_chat_id: "123@g.us"
leads:
  sweep_interval: 2m
  max_turns: 20
llm:
  provider: ollama
  model: llama3
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Leads.SweepInterval.Std() != 2*time.Minute || cfg.Leads.MaxTurns != 20 {
		t.Errorf("leads = %+v", cfg.Leads)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "llama3" || cfg.LLM.HistorySize != 10 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"rating": {"expiry": "soon"}}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Leads.SweepInterval = 0
	cfg.LLM.Provider = "anthropic"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"bot.admin_id", "bot.manager_chat_id", "leads.sweep_interval", "llm.provider"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, name := range []string{"out.json", "out.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Bot.AdminID = "admin"
			cfg.Rating.PromptDelay = Duration(45 * time.Second)

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig: %v", err)
			}
			loaded, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if loaded.Bot.AdminID != "admin" || loaded.Rating.PromptDelay != cfg.Rating.PromptDelay {
				t.Fatalf("round trip lost values: %+v", loaded)
			}
		})
	}
}

func TestDurationJSON(t *testing.T) {
	out, err := json.Marshal(Duration(3 * time.Minute))
	if err != nil || string(out) != `"3m0s"` {
		t.Fatalf("Marshal = %s, %v", out, err)
	}
	var d Duration
	if err := json.Unmarshal([]byte(`true`), &d); err == nil {
		t.Fatal("bool accepted as duration")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ADMIN_ID", "admin@s.whatsapp.net")
	t.Setenv("MANAGER_CHAT_ID", "managers@g.us")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ADMIN_JWT_SECRET", "secret")
	t.Setenv("DATABASE_PATH", "/tmp/bot.db")

	cfg := DefaultConfig()
	cfg.Analyzer.APIKey = "kept"
	cfg.ApplyEnv()

	if cfg.Bot.AdminID != "admin@s.whatsapp.net" || cfg.Bot.ManagerChatID != "managers@g.us" {
		t.Errorf("bot = %+v", cfg.Bot)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.Analyzer.APIKey != "kept" {
		t.Errorf("api keys = %q / %q", cfg.LLM.APIKey, cfg.Analyzer.APIKey)
	}
	if cfg.Admin.JWTSecret != "secret" || cfg.Database.Path != "/tmp/bot.db" {
		t.Errorf("admin/db = %+v / %+v", cfg.Admin, cfg.Database)
	}
}

func TestLoadDotEnvMissingFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	loaded, err := LoadDotEnv()
	if err != nil || len(loaded) != 0 {
		t.Fatalf("LoadDotEnv = %v, %v", loaded, err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LEAD_ASSISTANT_TEST_VAR=from-env\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEAD_ASSISTANT_TEST_VAR", "")
	os.Unsetenv("LEAD_ASSISTANT_TEST_VAR")

	loaded, err := LoadDotEnv()
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != ".env" {
		t.Fatalf("loaded = %v", loaded)
	}
	if got := os.Getenv("LEAD_ASSISTANT_TEST_VAR"); got != "from-env" {
		t.Fatalf("var = %q", got)
	}
}
