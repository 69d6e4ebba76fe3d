package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromSettingsDefaults(t *testing.T) {
	snap := FromSettings(map[string]string{}, func(string) string { return "" })

	if snap.LLM.Temperature != 0.2 || snap.LLM.MaxTokens != 4000 {
		t.Errorf("unexpected defaults %+v", snap.LLM)
	}
	if snap.LLM.ExtraHeaders == nil || len(snap.LLM.ExtraHeaders) != 0 {
		t.Errorf("expected empty headers, got %v", snap.LLM.ExtraHeaders)
	}
	if snap.CommandTimeout != 300*time.Second {
		t.Errorf("command timeout = %s", snap.CommandTimeout)
	}
	if snap.HasAPIKey() {
		t.Error("no key expected")
	}
}

func TestFromSettingsValues(t *testing.T) {
	settings := map[string]string{
		KeyProviderName:       "openai",
		KeyBaseURL:            "https://api.example.com/v1",
		KeyModel:              "gpt-4o-mini",
		KeyTemperature:        "0.7",
		KeyMaxTokens:          "1024",
		KeyExtraHeaders:       `{"X-Org":"acme","X-Retries":3}`,
		KeyAPIKey:             "sk-settings",
		KeyCommandTimeoutSecs: "60",
	}
	snap := FromSettings(settings, func(string) string { return "sk-env" })

	if snap.LLM.ProviderName != "openai" || snap.LLM.BaseURL != "https://api.example.com/v1" || snap.LLM.Model != "gpt-4o-mini" {
		t.Errorf("unexpected config %+v", snap.LLM)
	}
	if snap.LLM.Temperature != 0.7 || snap.LLM.MaxTokens != 1024 {
		t.Errorf("unexpected sampling %+v", snap.LLM)
	}
	if len(snap.LLM.ExtraHeaders) != 1 || snap.LLM.ExtraHeaders["X-Org"] != "acme" {
		t.Errorf("headers = %v", snap.LLM.ExtraHeaders)
	}
	if snap.LLM.APIKey != "sk-settings" {
		t.Errorf("settings key should win over env, got %q", snap.LLM.APIKey)
	}
	if snap.CommandTimeout != time.Minute {
		t.Errorf("command timeout = %s", snap.CommandTimeout)
	}
}

func TestFromSettingsFallbacks(t *testing.T) {
	settings := map[string]string{
		KeyTemperature:        "warm",
		KeyMaxTokens:          "lots",
		KeyExtraHeaders:       "{not json",
		KeyCommandTimeoutSecs: "-5",
	}
	var asked string
	snap := FromSettings(settings, func(name string) string {
		asked = name
		return "sk-env"
	})

	if snap.LLM.Temperature != DefaultTemperature || snap.LLM.MaxTokens != DefaultMaxTokens {
		t.Errorf("bad values should fall back, got %+v", snap.LLM)
	}
	if len(snap.LLM.ExtraHeaders) != 0 {
		t.Errorf("headers = %v", snap.LLM.ExtraHeaders)
	}
	if snap.CommandTimeout != 300*time.Second {
		t.Errorf("command timeout = %s", snap.CommandTimeout)
	}
	if asked != APIKeyEnv || snap.LLM.APIKey != "sk-env" || !snap.HasAPIKey() {
		t.Errorf("env fallback: asked %q, key %q", asked, snap.LLM.APIKey)
	}

	if got := FromSettings(nil, nil); got.HasAPIKey() {
		t.Error("nil getenv must not find a key")
	}
}

func TestImportYAML(t *testing.T) {
	doc := `
provider_name: openai
base_url: https://api.example.com/v1
model: gpt-4o-mini
temperature: 0.1
max_tokens: 2048
command_timeout_secs: 120
extra_headers:
  X-Org: acme
`
	got, err := ImportYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ImportYAML: %v", err)
	}
	want := map[string]string{
		KeyProviderName:       "openai",
		KeyBaseURL:            "https://api.example.com/v1",
		KeyModel:              "gpt-4o-mini",
		KeyTemperature:        "0.1",
		KeyMaxTokens:          "2048",
		KeyCommandTimeoutSecs: "120",
		KeyExtraHeaders:       `{"X-Org":"acme"}`,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	snap := FromSettings(got, nil)
	if snap.LLM.ExtraHeaders["X-Org"] != "acme" || snap.CommandTimeout != 2*time.Minute {
		t.Errorf("imported settings not usable: %+v", snap)
	}
}

func TestImportYAMLErrors(t *testing.T) {
	tests := []string{
		"colour: blue\n",
		"model: [a, b]\n",
		"extra_headers: nope\n",
		"extra_headers:\n  X-Count: 3\n",
		"model: \"unterminated\n",
	}
	for _, doc := range tests {
		if _, err := ImportYAML(strings.NewReader(doc)); err == nil {
			t.Errorf("ImportYAML(%q): expected an error", doc)
		}
	}

	got, err := ImportYAML(strings.NewReader(""))
	if err != nil || len(got) != 0 {
		t.Errorf("empty document: %v, %v", got, err)
	}
}

func TestRedact(t *testing.T) {
	if got := Redact(KeyModel, "gpt-4o"); got != "gpt-4o" {
		t.Errorf("non-secret changed: %q", got)
	}
	if got := Redact(KeyAPIKey, "short"); got != "********" {
		t.Errorf("short key = %q", got)
	}
	if got := Redact(KeyAPIKey, "sk-abcdefghijkl"); strings.Contains(got, "efgh") || !strings.HasPrefix(got, "sk-a") {
		t.Errorf("long key = %q", got)
	}
}
