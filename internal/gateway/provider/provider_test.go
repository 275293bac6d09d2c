package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonReply(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen3:8b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "json", req.Format)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		jsonReply(w, 200, `{"model":"qwen3:8b","message":{"role":"assistant","content":"{\"decisions\":[]}","thinking":"flat market"}}`)
	}))
	defer srv.Close()

	o := NewOllama(Config{BaseURL: srv.URL, Model: "qwen3:8b", Timeout: time.Second})
	resp, err := o.Chat(context.Background(), Prompt{System: "sys", User: "usr", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"decisions":[]}`, resp.Content)
	assert.Equal(t, "flat market", resp.Reasoning)
	assert.Equal(t, "ollama:qwen3:8b", o.ID())
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, "usr", req.Prompt)
		jsonReply(w, 200, `{"model":"llama3","response":"<think>hmm</think>[]","thinking":""}`)
	}))
	defer srv.Close()

	o := NewOllama(Config{BaseURL: srv.URL, Model: "llama3"})
	resp, err := o.Complete(context.Background(), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "<think>hmm</think>[]", resp.Content)
	assert.Equal(t, "llama3", resp.Model)
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		code int
		body string
		want error
	}{
		{404, "404 page not found", ErrUnsupported},
		{405, "method not allowed", ErrUnsupported},
		{501, "", ErrUnsupported},
		{500, "boom", ErrUnavailable},
		{503, "overloaded", ErrUnavailable},
		{429, "slow down", ErrUnavailable},
		{400, `{"error":"model \"x\" not found"}`, ErrUnsupported},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jsonReply(w, tc.code, tc.body)
		}))
		o := NewOllama(Config{BaseURL: srv.URL, Model: "m"})
		_, err := o.Chat(context.Background(), Prompt{User: "u"})
		assert.ErrorIs(t, err, tc.want, "code %d", tc.code)
		var se *StatusError
		assert.True(t, errors.As(err, &se))
		srv.Close()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, 401, `{"error":"bad key"}`)
	}))
	defer srv.Close()
	_, err := NewOllama(Config{BaseURL: srv.URL, Model: "m"}).Chat(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupported))
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	o := NewOllama(Config{BaseURL: srv.URL, Model: "m", Timeout: 50 * time.Millisecond})
	_, err := o.Chat(context.Background(), Prompt{User: "u"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewOllama(Config{BaseURL: "http://127.0.0.1:1", Model: "m", Timeout: time.Second}).Chat(context.Background(), Prompt{User: "u"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		jsonReply(w, 503, "warming up")
	}))
	defer srv.Close()

	o := NewOllama(Config{BaseURL: srv.URL, Model: "m"})
	_, err := o.Chat(context.Background(), Prompt{User: "u"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestOpenAIChatAndComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		switch r.URL.Path {
		case "/v1/chat/completions":
			var req openAIChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "json_object", req.ResponseFormat["type"])
			jsonReply(w, 200, `{"model":"deepseek-reasoner","choices":[{"message":{"content":"{}","reasoning_content":"because"}}]}`)
		case "/v1/completions":
			var req openAICompletionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "sys\n\nusr", req.Prompt)
			jsonReply(w, 200, `{"choices":[{"text":"[]"}]}`)
		default:
			jsonReply(w, 404, "nope")
		}
	}))
	defer srv.Close()

	o := NewOpenAI(Config{
		BaseURL: srv.URL + "/v1/chat/completions/",
		APIKey:  "sk-test",
		Model:   "deepseek-reasoner",
		Headers: map[string]string{"X-Extra": "yes"},
	})
	resp, err := o.Chat(context.Background(), Prompt{System: "sys", User: "usr", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)
	assert.Equal(t, "because", resp.Reasoning)

	resp, err = o.Complete(context.Background(), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Content)
	assert.Equal(t, "deepseek-reasoner", resp.Model)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, 200, `{"choices":[]}`)
	}))
	defer srv.Close()
	_, err := NewOpenAI(Config{BaseURL: srv.URL, Model: "m"}).Chat(context.Background(), Prompt{User: "u"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMockProducesWellFormedJSON(t *testing.T) {
	m := NewMock("", []string{"BTC", "ETH"}, 7)
	m.SetReference("BTC", 60000)
	for i := 0; i < 20; i++ {
		resp, err := m.Chat(context.Background(), Prompt{})
		require.NoError(t, err)
		var body struct {
			Decisions []map[string]any `json:"decisions"`
		}
		require.NoError(t, json.Unmarshal([]byte(resp.Content), &body))
		require.Len(t, body.Decisions, 1)
		assert.Contains(t, []any{"BTC", "ETH"}, body.Decisions[0]["symbol"])
	}

	m.ChatOnly = true
	_, err := m.Complete(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrUnsupported)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Chat(ctx, Prompt{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFactory(t *testing.T) {
	b, err := New("ollama", Config{Model: "m"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, b)

	b, err = New("DeepSeek", Config{Model: "deepseek-chat", ID: "ds"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ds", b.ID())

	b, err = New("mock", Config{ID: "m1"}, []string{"BTC"})
	require.NoError(t, err)
	assert.Equal(t, "m1", b.ID())

	_, err = New("ollama", Config{}, nil)
	assert.Error(t, err)
	_, err = New("grpc", Config{Model: "m"}, nil)
	assert.Error(t, err)
}
