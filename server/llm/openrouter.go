package llm

import (
	"errors"
	"os"
	"strings"
)

// defaultAppTitle is sent as X-Title to OpenRouter unless OPENROUTER_TITLE is set.
const defaultAppTitle = "x402 Arena"

type providerKind int

const (
	providerOpenAI providerKind = iota
	providerOpenRouter
)

type provider struct {
	name     string
	baseURL  string
	keyEnv   string
	modelEnv string
}

var providers = map[providerKind]provider{
	providerOpenAI:     {name: "openai", baseURL: "https://api.openai.com/v1", keyEnv: "OPENAI_API_KEY", modelEnv: "OPENAI_MODEL"},
	providerOpenRouter: {name: "openrouter", baseURL: "https://openrouter.ai/api/v1", keyEnv: "OPENROUTER_API_KEY", modelEnv: "OPENROUTER_MODEL"},
}

func (k providerKind) other() providerKind {
	if k == providerOpenRouter {
		return providerOpenAI
	}
	return providerOpenRouter
}

type apiConfig struct {
	Kind         providerKind
	APIKey       string
	Model        string
	BaseURL      string
	HeaderName   string
	HeaderPrefix string
	Organization string
	ExtraHeaders map[string]string
}

// resolveAPIConfig works out endpoint, credentials and headers for model.
// LLM_PROVIDER pins the provider; otherwise an "openrouter/" model, OpenRouter
// env vars or an OpenRouter base URL select it.
func resolveAPIConfig(model string) (apiConfig, error) {
	kind, pinned := chooseProvider(model)
	cfg := apiConfig{Kind: kind, Model: strings.TrimSpace(model), ExtraHeaders: map[string]string{}}

	if cfg.Model == "" {
		cfg.Model = firstEnv(providers[kind].modelEnv, "OPENAI_MODEL")
	}
	if cfg.Model == "" {
		return apiConfig{}, errors.New("model missing: set OPENAI_MODEL/OPENROUTER_MODEL or pass a value")
	}
	if !pinned && isOpenRouterModel(cfg.Model) {
		cfg.Kind = providerOpenRouter
	}

	cfg.BaseURL = firstEnv("OPENAI_API_BASE", "OPENAI_BASE_URL", "OPENROUTER_API_BASE", "OPENROUTER_BASE_URL")
	if cfg.BaseURL == "" {
		cfg.BaseURL = providers[cfg.Kind].baseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if !pinned && strings.Contains(strings.ToLower(cfg.BaseURL), "openrouter") {
		cfg.Kind = providerOpenRouter
	}

	cfg.APIKey = firstEnv(providers[cfg.Kind].keyEnv, providers[cfg.Kind.other()].keyEnv)
	if cfg.APIKey == "" {
		return apiConfig{}, errors.New("API key missing: set OPENAI_API_KEY or OPENROUTER_API_KEY")
	}

	cfg.HeaderName = firstEnv("OPENAI_API_KEY_HEADER", "OPENROUTER_API_KEY_HEADER")
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Authorization"
	}
	cfg.HeaderPrefix = os.Getenv("OPENAI_API_KEY_PREFIX")
	if cfg.HeaderPrefix == "" {
		cfg.HeaderPrefix = os.Getenv("OPENROUTER_API_KEY_PREFIX")
	}
	if cfg.HeaderName == "Authorization" && strings.TrimSpace(cfg.HeaderPrefix) == "" {
		cfg.HeaderPrefix = "Bearer "
	}
	cfg.Organization = firstEnv("OPENAI_ORG")

	if cfg.Kind == providerOpenRouter {
		if site := firstEnv("OPENROUTER_SITE_URL"); site != "" {
			cfg.ExtraHeaders["HTTP-Referer"] = site
			cfg.ExtraHeaders["Referer"] = site
		}
		cfg.ExtraHeaders["X-Title"] = firstNonEmpty(os.Getenv("OPENROUTER_TITLE"), defaultAppTitle)
	}
	return cfg, nil
}

func chooseProvider(model string) (kind providerKind, pinned bool) {
	switch strings.ToLower(firstEnv("LLM_PROVIDER")) {
	case "openrouter":
		return providerOpenRouter, true
	case "openai":
		return providerOpenAI, true
	}
	if isOpenRouterModel(model) || preferOpenRouterEnv() {
		return providerOpenRouter, false
	}
	return providerOpenAI, false
}

// ProviderName reports which provider a request for model would go to.
func ProviderName(model string) string {
	if cfg, err := resolveAPIConfig(model); err == nil {
		return providers[cfg.Kind].name
	}
	kind, _ := chooseProvider(model)
	return providers[kind].name
}

// preferOpenRouterEnv is true when only OpenRouter settings are present.
func preferOpenRouterEnv() bool {
	switch {
	case firstEnv("OPENROUTER_API_KEY") != "" && firstEnv("OPENAI_API_KEY") == "":
		return true
	case firstEnv("OPENROUTER_MODEL") != "" && firstEnv("OPENAI_MODEL") == "":
		return true
	case firstEnv("OPENROUTER_API_BASE", "OPENROUTER_BASE_URL") != "":
		return true
	}
	return strings.Contains(strings.ToLower(firstEnv("OPENAI_API_BASE", "OPENAI_BASE_URL")), "openrouter")
}

func isOpenRouterModel(model string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(model)), "openrouter/")
}

// tuningEnv reads OPENAI_<name> or OPENROUTER_<name>, the preferred
// provider's first.
func tuningEnv(preferOpenRouter bool, name string) string {
	if preferOpenRouter {
		return firstEnv("OPENROUTER_"+name, "OPENAI_"+name)
	}
	return firstEnv("OPENAI_"+name, "OPENROUTER_"+name)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
