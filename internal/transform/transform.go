// Package transform rewrites inbound Responses-API request bodies into the
// shape the ChatGPT Codex backend accepts. The backend is streaming-only and
// stateless, so the transformer forces streaming, strips anything that
// implies server-side state, and fills the defaults the backend requires.
package transform

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sumeet/opencode-openai-codex-auth/internal/config"
)

// Model variants accepted by the upstream backend.
const (
	ModelBase  = "gpt-5"
	ModelCodex = "gpt-5-codex"
)

// removedFields are unsupported upstream and stripped from every request.
var removedFields = []string{
	"metadata",
	"max_output_tokens",
	"max_completion_tokens",
	"previous_response_id",
	"user",
	"service_tier",
}

// RequestState captures what the transformer learned about the original
// request before mutating it. The pipeline needs it after the body has
// already been rewritten.
type RequestState struct {
	// WantStream is the caller's original streaming preference, captured
	// before stream=true is forced.
	WantStream bool
	// OriginalModel is the caller-supplied model name, possibly empty.
	OriginalModel string
	// Model is the normalized upstream model.
	Model string
	// Effort and Summary are the resolved reasoning settings.
	Effort  string
	Summary string
	// Verbosity is the resolved text verbosity.
	Verbosity string
	// CacheKey is the correlation id sent upstream.
	CacheKey string
	// HasTools records whether the caller supplied a tools array.
	HasTools bool
}

// Transform rewrites body in the upstream schema and reports the captured
// request state. instructions is the base text used when the caller
// supplied none; pass "" to disable injection.
func Transform(body []byte, cfg *config.Config, instructions string) ([]byte, RequestState) {
	root := gjson.ParseBytes(body)

	state := RequestState{
		WantStream:    root.Get("stream").Bool(),
		OriginalModel: root.Get("model").String(),
		HasTools:      root.Get("tools").IsArray(),
	}
	state.Model = NormalizeModel(state.OriginalModel)
	state.Effort = resolveEffort(cfg, state.Model, state.OriginalModel)
	state.Summary = resolveOverride(cfg.ModelReasoningSummary, state.Model, cfg.ReasoningSummary, "auto")
	state.Verbosity = resolveOverride(cfg.ModelTextVerbosity, state.Model, cfg.TextVerbosity, "medium")

	for _, field := range removedFields {
		body, _ = sjson.DeleteBytes(body, field)
	}

	// The backend only speaks stateless streaming.
	body, _ = sjson.SetBytes(body, "store", false)
	body, _ = sjson.SetBytes(body, "stream", true)
	body, _ = sjson.SetBytes(body, "model", state.Model)

	if inst := strings.TrimSpace(root.Get("instructions").String()); inst != "" {
		body, _ = sjson.SetBytes(body, "instructions", inst)
	} else if instructions != "" {
		body, _ = sjson.SetBytes(body, "instructions", instructions)
	} else {
		body, _ = sjson.DeleteBytes(body, "instructions")
	}

	body = rewriteInput(body, root.Get("input"), cfg)

	body, _ = sjson.SetBytes(body, "reasoning.effort", state.Effort)
	body, _ = sjson.SetBytes(body, "reasoning.summary", state.Summary)
	body, _ = sjson.SetBytes(body, "text.verbosity", state.Verbosity)

	// Stateless mode cannot rely on server-side reasoning retention, so ask
	// for the encrypted continuation payload unless the caller chose.
	if !root.Get("include").IsArray() {
		body, _ = sjson.SetBytes(body, "include", []string{"reasoning.encrypted_content"})
	}

	state.CacheKey = root.Get("prompt_cache_key").String()
	if state.CacheKey == "" {
		// No stable key means no cross-turn prompt caching; that is the
		// documented policy, not an accident.
		state.CacheKey = uuid.NewString()
	}
	body, _ = sjson.SetBytes(body, "prompt_cache_key", state.CacheKey)

	return body, state
}

// rewriteInput rebuilds the input array: one optional guidance item first,
// then the caller's items in their original order with identifiers stripped
// and server-state references dropped.
func rewriteInput(body []byte, input gjson.Result, cfg *config.Config) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')

	if !cfg.DisableToolGuidance {
		if item := guidanceItem(cfg.ToolProfile); item != "" {
			buf.WriteString(item)
		}
	}

	if input.IsArray() {
		input.ForEach(func(_, item gjson.Result) bool {
			// item_reference points at server-side state the stateless
			// backend does not retain.
			if item.Get("type").String() == "item_reference" {
				return true
			}
			raw := item.Raw
			if item.Get("id").Exists() {
				raw, _ = sjson.Delete(raw, "id")
			}
			if buf.Len() > 1 {
				buf.WriteByte(',')
			}
			buf.WriteString(raw)
			return true
		})
	}

	buf.WriteByte(']')
	body, _ = sjson.SetRawBytes(body, "input", buf.Bytes())
	return body
}

// NormalizeModel maps any caller-supplied model name onto an upstream
// variant. Unknown and absent names fall back to the base variant.
func NormalizeModel(model string) string {
	lowered := strings.ToLower(model)
	switch {
	case strings.Contains(lowered, "codex"):
		return ModelCodex
	case strings.Contains(lowered, "gpt-5"), strings.Contains(lowered, "gpt 5"):
		return ModelBase
	default:
		return ModelBase
	}
}

// resolveEffort resolves reasoning effort from the per-model override, the
// global override, then a default keyed by whether the original name
// signals a lightweight variant. The codex variant has no minimal tier.
func resolveEffort(cfg *config.Config, model, originalModel string) string {
	fallback := "medium"
	if isLightweight(originalModel) {
		fallback = "minimal"
	}
	effort := resolveOverride(cfg.ModelReasoningEffort, model, cfg.ReasoningEffort, fallback)
	if model == ModelCodex && effort == "minimal" {
		effort = "low"
	}
	return effort
}

func isLightweight(model string) bool {
	lowered := strings.ToLower(model)
	return strings.Contains(lowered, "mini") || strings.Contains(lowered, "nano")
}

func resolveOverride(perModel map[string]string, model, global, fallback string) string {
	if v, ok := perModel[model]; ok && v != "" {
		return v
	}
	if global != "" {
		return global
	}
	return fallback
}
