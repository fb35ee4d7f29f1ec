package transform

import (
	"github.com/tidwall/sjson"
)

// Tool-environment guidance keyed by profile. The backend's base
// instructions describe the Codex CLI harness; callers run different
// harnesses, so a short developer message re-grounds tool-calling behavior
// in the environment actually in front of the model.
var guidanceTexts = map[string]string{
	"opencode": "You are running inside the opencode CLI agent, not the Codex CLI. " +
		"Use only the tools provided in this request; do not assume apply_patch, " +
		"shell, or update_plan exist unless they are listed. File edits go through " +
		"the provided edit tools, and tool arguments must match the declared JSON " +
		"schemas exactly.",
	"cline": "You are running inside the Cline agent, not the Codex CLI. Use only " +
		"the tools provided in this request and follow their declared JSON schemas " +
		"exactly; do not assume Codex-specific tools like apply_patch are available.",
	"generic": "You are running inside a third-party coding agent, not the Codex " +
		"CLI. Use only the tools declared in this request and match their JSON " +
		"schemas exactly.",
}

// guidanceItem renders the guidance for profile as a developer input item.
// Unknown profiles fall back to the generic text. Returns "" only if even
// the fallback is missing.
func guidanceItem(profile string) string {
	text, ok := guidanceTexts[profile]
	if !ok {
		text = guidanceTexts["generic"]
	}
	if text == "" {
		return ""
	}
	item := `{"type":"message","role":"developer","content":[{"type":"input_text","text":""}]}`
	item, _ = sjson.Set(item, "content.0.text", text)
	return item
}
