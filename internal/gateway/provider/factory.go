package provider

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// New builds a backend by kind: "ollama", "openai" (any compatible server) or "mock".
func New(kind string, cfg Config, symbols []string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "ollama":
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, fmt.Errorf("ollama backend %q: model is required", cfg.ID)
		}
		return NewOllama(cfg), nil
	case "openai", "openai-compatible", "deepseek", "qwen":
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, fmt.Errorf("openai backend %q: model is required", cfg.ID)
		}
		return NewOpenAI(cfg), nil
	case "mock":
		return NewMock(cfg.ID, symbols, seedOf(cfg.ID)), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}

func seedOf(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64() >> 1)
}
