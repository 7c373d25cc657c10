package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// PingOptions controls JSON mode, reasoning effort and output tokens.
type PingOptions struct {
	ReasoningEffort      string
	MaxOutputTokens      *int
	StructuredSchemaName string
	StructuredSchema     map[string]any
	StructuredStrict     bool
}

// Choice is a model's structured poker decision.
type Choice struct {
	Action  string // one of the legal action names
	RaiseTo *int   // absolute bet for the street, set only for raise
	Comment string
	Raw     string
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type reasoning struct {
	Effort string `json:"effort"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Reasoning      *reasoning     `json:"reasoning,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    *float64       `json:"temperature,omitempty"`
	TopP           *float64       `json:"top_p,omitempty"`
	TopK           int            `json:"top_k,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

var httpClient = &http.Client{Timeout: 45 * time.Second}

// PingText sends a minimal chat/completions request and returns the text.
func PingText(ctx context.Context, model, system, user string) (string, error) {
	return PingTextWithOpts(ctx, model, system, user, EnvPingOptions())
}

func PingTextWithOpts(ctx context.Context, model, system, user string, opts PingOptions) (string, error) {
	cfg, err := resolveAPIConfig(model)
	if err != nil {
		return "", err
	}
	req, err := newChatRequest(ctx, cfg, buildChat(cfg, system, user, opts))
	if err != nil {
		return "", err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm http %d: %s", resp.StatusCode, truncate(string(body), 800))
	}
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return cr.Choices[0].Message.Content, nil
}

func buildChat(cfg apiConfig, system, user string, opts PingOptions) chatRequest {
	cr := chatRequest{
		Model:          cfg.Model,
		Messages:       []message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	if opts.MaxOutputTokens != nil && *opts.MaxOutputTokens > 0 {
		cr.MaxTokens = *opts.MaxOutputTokens
	}
	if effort := strings.TrimSpace(opts.ReasoningEffort); effort != "" {
		cr.Reasoning = &reasoning{Effort: effort}
	}
	if opts.StructuredSchema != nil {
		cr.ResponseFormat = responseFormat{Type: "json_schema", JSONSchema: &jsonSchema{
			Name:   coalesce(opts.StructuredSchemaName, "structured"),
			Strict: opts.StructuredStrict,
			Schema: opts.StructuredSchema,
		}}
	}
	cr.tune(cfg.Kind == providerOpenRouter)
	return cr
}

// tune applies sampling overrides from *_TEMPERATURE, *_TOP_P and *_TOP_K.
func (cr *chatRequest) tune(preferOpenRouter bool) {
	if f, err := strconv.ParseFloat(tuningEnv(preferOpenRouter, "TEMPERATURE"), 64); err == nil {
		cr.Temperature = &f
	}
	if f, err := strconv.ParseFloat(tuningEnv(preferOpenRouter, "TOP_P"), 64); err == nil {
		cr.TopP = &f
	}
	if n, err := strconv.Atoi(tuningEnv(preferOpenRouter, "TOP_K")); err == nil && n > 0 {
		cr.TopK = n
	}
}

func newChatRequest(ctx context.Context, cfg apiConfig, cr chatRequest) (*http.Request, error) {
	b, err := json.Marshal(cr)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setHeaderPreserveCase(req.Header, cfg.HeaderName, cfg.HeaderPrefix+cfg.APIKey)
	setHeaderPreserveCase(req.Header, "OpenAI-Organization", cfg.Organization)
	for k, v := range cfg.ExtraHeaders {
		setHeaderPreserveCase(req.Header, k, v)
	}
	return req, nil
}

// ChooseAction asks for {"action","amount","comment"} constrained to legal,
// with amount a raise-to in [minTo, maxTo].
func ChooseAction(ctx context.Context, model, system, user string, legal []string, minTo, maxTo int, opts PingOptions) (Choice, error) {
	opts.StructuredSchema = actionSchema(legal, minTo, maxTo)
	opts.StructuredSchemaName = coalesce(opts.StructuredSchemaName, "poker_action")
	opts.StructuredStrict = true

	text, err := PingTextWithOpts(ctx, model, system, user, opts)
	if err != nil {
		return Choice{Raw: text}, err
	}
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Choice{}, errors.New("empty response")
	}
	parsed, err := parseLenient(raw)
	if err != nil {
		return Choice{Raw: raw}, fmt.Errorf("parse action: %w", err)
	}
	act, amt, ok := coerceActionMap(parsed, legal, minTo, maxTo)
	if !ok {
		return Choice{Raw: raw}, errors.New("no valid action in response")
	}
	comment, _ := parsed["comment"].(string)
	return Choice{Action: act, RaiseTo: amt, Comment: truncate(strings.TrimSpace(comment), 240), Raw: raw}, nil
}

// parseLenient decodes raw as a JSON object, retrying on the outermost
// {...} span when the model wrapped it in prose or a code fence.
func parseLenient(raw string) (map[string]any, error) {
	var m map[string]any
	err := json.Unmarshal([]byte(raw), &m)
	if err == nil {
		return m, nil
	}
	inner := extractJSONObject(raw)
	if inner == "" {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inner), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func actionSchema(legal []string, minTo, maxTo int) map[string]any {
	prop := func(typ any, desc string) map[string]any {
		return map[string]any{"type": typ, "description": desc}
	}
	action := prop("string", "One of the legal poker actions")
	action["enum"] = legal
	amount := prop([]any{"integer", "null"}, "Raise-to amount when action is raise; otherwise null")
	amount["minimum"] = minTo
	amount["maximum"] = maxTo
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"action":  action,
			"amount":  amount,
			"comment": prop("string", "One or two sentences of table talk explaining the decision"),
		},
		"required": []string{"action", "amount", "comment"},
	}
}

// setHeaderPreserveCase writes key exactly as given when it differs from
// the canonical form (OpenRouter wants "HTTP-Referer"). Blank keys or values
// are skipped.
func setHeaderPreserveCase(h http.Header, key, value string) {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	switch {
	case key == "" || value == "":
	case http.CanonicalHeaderKey(key) == key:
		h.Set(key, value)
	default:
		delete(h, http.CanonicalHeaderKey(key))
		h[key] = []string{value}
	}
}

func truncate(s string, n int) string {
	switch {
	case len(s) <= n:
		return s
	case n <= 3:
		return s[:n]
	}
	return s[:n-3] + "..."
}

func coalesce(a, b string) string {
	if strings.TrimSpace(a) == "" {
		return b
	}
	return a
}

func extractJSONObject(s string) string {
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

var actionAliases = map[string]string{
	"bet":    "raise",
	"allin":  "all-in",
	"all_in": "all-in",
	"shove":  "all-in",
}

// coerceActionMap normalises a decoded reply. Raises without an amount
// become min-raises; raise amounts outside [minRaiseTo, maxRaiseTo] reject
// the reply; other actions drop their amount.
func coerceActionMap(parsed map[string]any, legal []string, minRaiseTo, maxRaiseTo int) (string, *int, bool) {
	act, _ := parsed["action"].(string)
	act = strings.ToLower(strings.TrimSpace(act))
	if alias, ok := actionAliases[act]; ok {
		act = alias
	}
	if !slices.Contains(legal, act) {
		return "", nil, false
	}
	if act != "raise" {
		return act, nil, true
	}

	to, ok := amountOf(parsed["amount"])
	if !ok {
		to = minRaiseTo
	}
	if to < minRaiseTo || to > maxRaiseTo {
		return "", nil, false
	}
	return act, &to, true
}

func amountOf(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

// EnvPingOptions reads reasoning effort and token limits from the environment.
func EnvPingOptions() PingOptions {
	preferOpenRouter := preferOpenRouterEnv()
	opts := PingOptions{ReasoningEffort: tuningEnv(preferOpenRouter, "REASONING_EFFORT")}
	if n, err := strconv.Atoi(tuningEnv(preferOpenRouter, "MAX_OUTPUT_TOKENS")); err == nil && n > 0 {
		opts.MaxOutputTokens = &n
	}
	return opts
}
