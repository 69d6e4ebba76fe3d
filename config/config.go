// Package config turns stored settings into the immutable snapshot a
// workflow run uses.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/spectrail/llm"
	"github.com/martinemde/spectrail/repotools"
)

// Setting keys.
const (
	KeyProviderName       = "provider_name"
	KeyBaseURL            = "base_url"
	KeyModel              = "model"
	KeyTemperature        = "temperature"
	KeyMaxTokens          = "max_tokens"
	KeyExtraHeaders       = "extra_headers_json"
	KeyAPIKey             = "api_key"
	KeyCommandTimeoutSecs = "command_timeout_secs"
)

// APIKeyEnv is consulted when no api_key setting is stored.
const APIKeyEnv = "SPECTRAIL_API_KEY"

const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 4000
)

// Keys lists every recognised setting.
var Keys = []string{
	KeyProviderName, KeyBaseURL, KeyModel, KeyTemperature, KeyMaxTokens,
	KeyExtraHeaders, KeyAPIKey, KeyCommandTimeoutSecs,
}

// Snapshot is read once at run start and never changes during the run.
type Snapshot struct {
	LLM            llm.Config
	CommandTimeout time.Duration
}

// FromSettings builds a snapshot. Missing or unparseable values fall back
// to their defaults; getenv may be nil.
func FromSettings(settings map[string]string, getenv func(string) string) Snapshot {
	snap := Snapshot{
		LLM: llm.Config{
			ProviderName: settings[KeyProviderName],
			BaseURL:      settings[KeyBaseURL],
			Model:        settings[KeyModel],
			Temperature:  DefaultTemperature,
			MaxTokens:    DefaultMaxTokens,
			ExtraHeaders: map[string]string{},
			APIKey:       settings[KeyAPIKey],
		},
		CommandTimeout: repotools.DefaultCommandTimeout,
	}

	if v, err := strconv.ParseFloat(strings.TrimSpace(settings[KeyTemperature]), 64); err == nil {
		snap.LLM.Temperature = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(settings[KeyMaxTokens])); err == nil {
		snap.LLM.MaxTokens = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(settings[KeyCommandTimeoutSecs])); err == nil && v > 0 {
		snap.CommandTimeout = time.Duration(v) * time.Second
	}

	// Only string-valued header entries are usable.
	if raw := settings[KeyExtraHeaders]; gjson.Valid(raw) {
		gjson.Parse(raw).ForEach(func(k, v gjson.Result) bool {
			if v.Type == gjson.String {
				snap.LLM.ExtraHeaders[k.String()] = v.String()
			}
			return true
		})
	}

	if snap.LLM.APIKey == "" && getenv != nil {
		snap.LLM.APIKey = getenv(APIKeyEnv)
	}
	return snap
}

// HasAPIKey reports whether a credential was found in settings or the
// environment.
func (s Snapshot) HasAPIKey() bool {
	return s.LLM.APIKey != ""
}

// IsKnownKey reports whether key is a recognised setting.
func IsKnownKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Redact masks secret values for display.
func Redact(key, value string) string {
	if key != KeyAPIKey || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "…" + value[len(value)-4:]
}

// ImportYAML reads a flat mapping of setting keys to scalar values. The
// extra headers may be given either as a JSON string under
// extra_headers_json or as a nested mapping under extra_headers.
func ImportYAML(r io.Reader) (map[string]string, error) {
	var doc map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	out := make(map[string]string, len(doc))
	var unknown []string
	for key, value := range doc {
		if key == "extra_headers" {
			headers, ok := value.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("extra_headers must be a mapping")
			}
			encoded, err := encodeHeaders(headers)
			if err != nil {
				return nil, err
			}
			out[KeyExtraHeaders] = encoded
			continue
		}
		if !IsKnownKey(key) {
			unknown = append(unknown, key)
			continue
		}
		switch v := value.(type) {
		case string:
			out[key] = v
		case int, int64, float64, bool:
			out[key] = fmt.Sprint(v)
		case nil:
			out[key] = ""
		default:
			return nil, fmt.Errorf("setting %s must be a scalar", key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown settings: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

func encodeHeaders(headers map[string]interface{}) (string, error) {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		str, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("extra_headers.%s must be a string", k)
		}
		out[k] = str
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
