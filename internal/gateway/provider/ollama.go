package provider

import (
	"context"

	"github.com/go-resty/resty/v2"
)

// Ollama speaks the native Ollama API: /api/chat, then /api/generate.
type Ollama struct {
	cfg    Config
	client *resty.Client
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Thinking string `json:"thinking"`
}

func NewOllama(cfg Config) *Ollama {
	return &Ollama{cfg: cfg, client: newRestyClient(cfg, "http://localhost:11434")}
}

func (o *Ollama) ID() string    { return firstNonEmpty(o.cfg.ID, "ollama:"+o.cfg.Model) }
func (o *Ollama) Model() string { return o.cfg.Model }

func (o *Ollama) Chat(ctx context.Context, p Prompt) (Response, error) {
	msgs := make([]ollamaMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: p.System})
	}
	msgs = append(msgs, ollamaMessage{Role: "user", Content: p.User})
	req := ollamaChatRequest{
		Model:    o.cfg.Model,
		Messages: msgs,
		Format:   jsonFormat(p.JSON),
		Options:  ollamaOptions{Temperature: p.Temperature, NumPredict: p.MaxTokens},
	}
	var out ollamaChatResponse
	if err := post(ctx, o.client, "/api/chat", req, &out); err != nil {
		return Response{}, err
	}
	return Response{
		Content:   out.Message.Content,
		Reasoning: out.Message.Thinking,
		Model:     firstNonEmpty(out.Model, o.cfg.Model),
	}, nil
}

func (o *Ollama) Complete(ctx context.Context, p Prompt) (Response, error) {
	req := ollamaGenerateRequest{
		Model:   o.cfg.Model,
		System:  p.System,
		Prompt:  p.User,
		Format:  jsonFormat(p.JSON),
		Options: ollamaOptions{Temperature: p.Temperature, NumPredict: p.MaxTokens},
	}
	var out ollamaGenerateResponse
	if err := post(ctx, o.client, "/api/generate", req, &out); err != nil {
		return Response{}, err
	}
	return Response{
		Content:   out.Response,
		Reasoning: out.Thinking,
		Model:     firstNonEmpty(out.Model, o.cfg.Model),
	}, nil
}

func jsonFormat(on bool) string {
	if on {
		return "json"
	}
	return ""
}
