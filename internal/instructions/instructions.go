// Package instructions supplies the base instruction text injected into
// requests that carry none of their own. The text ships embedded and can be
// overridden by a local file; either way it is read once and cached for the
// life of the process.
package instructions

import (
	"context"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	log "github.com/sumeet/opencode-openai-codex-auth/internal/logging"
)

const defaultInstructions = "You are Codex, based on GPT-5. You are running as a coding agent " +
	"inside the user's development environment. Follow the user's instructions precisely, " +
	"prefer minimal focused changes, and use the provided tools to read and edit files rather " +
	"than guessing at their contents. When a task is ambiguous, state your assumption and continue."

// Provider resolves the base instruction text.
type Provider struct {
	overridePath string

	mu     sync.RWMutex
	cached string
	loaded bool
	group  singleflight.Group
}

// NewProvider creates a provider; overridePath may be empty.
func NewProvider(overridePath string) *Provider {
	return &Provider{overridePath: overridePath}
}

// Get returns the instruction text. Concurrent first reads collapse into a
// single file load.
func (p *Provider) Get(ctx context.Context) string {
	p.mu.RLock()
	if p.loaded {
		text := p.cached
		p.mu.RUnlock()
		return text
	}
	p.mu.RUnlock()

	text, _, _ := p.group.Do("load", func() (any, error) {
		text := p.load()
		p.mu.Lock()
		p.cached = text
		p.loaded = true
		p.mu.Unlock()
		return text, nil
	})
	return text.(string)
}

func (p *Provider) load() string {
	if p.overridePath == "" {
		return defaultInstructions
	}
	data, err := os.ReadFile(p.overridePath)
	if err != nil {
		log.Warnf("failed to read instructions override %s, using embedded text: %v", p.overridePath, err)
		return defaultInstructions
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return defaultInstructions
	}
	return text
}
