package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OpenAI speaks the OpenAI-compatible API (OpenAI, DeepSeek, Qwen, vLLM, LM
// Studio): /chat/completions, then the legacy /completions.
type OpenAI struct {
	cfg    Config
	client *resty.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any  `json:"response_format,omitempty"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Reasoning        string `json:"reasoning"`
		} `json:"message"`
	} `json:"choices"`
}

type openAICompletionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type openAICompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

func NewOpenAI(cfg Config) *OpenAI {
	// tolerate base urls that already name the endpoint
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/chat/completions")
	return &OpenAI{cfg: cfg, client: newRestyClient(cfg, "https://api.openai.com/v1")}
}

func (o *OpenAI) ID() string    { return firstNonEmpty(o.cfg.ID, "openai:"+o.cfg.Model) }
func (o *OpenAI) Model() string { return o.cfg.Model }

func (o *OpenAI) Chat(ctx context.Context, p Prompt) (Response, error) {
	msgs := make([]openAIMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: p.System})
	}
	msgs = append(msgs, openAIMessage{Role: "user", Content: p.User})
	req := openAIChatRequest{
		Model:       o.cfg.Model,
		Messages:    msgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	if p.JSON {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}
	var out openAIChatResponse
	if err := post(ctx, o.client, "/chat/completions", req, &out); err != nil {
		return Response{}, err
	}
	if len(out.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: empty choices", ErrUnavailable)
	}
	msg := out.Choices[0].Message
	return Response{
		Content:   msg.Content,
		Reasoning: firstNonEmpty(msg.ReasoningContent, msg.Reasoning),
		Model:     firstNonEmpty(out.Model, o.cfg.Model),
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, p Prompt) (Response, error) {
	req := openAICompletionRequest{
		Model:       o.cfg.Model,
		Prompt:      flatten(p),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	var out openAICompletionResponse
	if err := post(ctx, o.client, "/completions", req, &out); err != nil {
		return Response{}, err
	}
	if len(out.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: empty choices", ErrUnavailable)
	}
	return Response{Content: out.Choices[0].Text, Model: firstNonEmpty(out.Model, o.cfg.Model)}, nil
}
