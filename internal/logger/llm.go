package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// The LLM audit log is a separate plain-text stream holding every prompt, raw
// completion and reasoning trace. Writes never fail the caller.
var (
	llmMu          sync.Mutex
	llmLog         *log.Logger
	llmDumpPayload bool
)

func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmDumpPayload = enabled
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

func logLLM(tags []string, sections []llmSection) {
	llmMu.Lock()
	out := llmLog
	llmMu.Unlock()
	if out == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	out.Print(b.String())
}

// LogLLMRequest records the prompt pair sent by agent through the named strategy (chat/complete).
func LogLLMRequest(agent, provider, strategy, systemPrompt, userPrompt, payload string) {
	sections := []llmSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	llmMu.Lock()
	dump := llmDumpPayload
	llmMu.Unlock()
	if dump && strings.TrimSpace(payload) != "" {
		sections = append(sections, llmSection{Title: "PAYLOAD", Body: payload})
	}
	logLLM([]string{agent, provider, strategy + "-request"}, sections)
}

func LogLLMResponse(agent, provider, strategy, raw string) {
	logLLM([]string{agent, provider, strategy + "-response"}, []llmSection{{Title: "RAW", Body: raw}})
}

func LogLLMReasoning(agent, provider, reasoning string) {
	if strings.TrimSpace(reasoning) == "" {
		return
	}
	logLLM([]string{agent, provider, "reasoning"}, []llmSection{{Title: "THINKING", Body: reasoning}})
}

func LogLLMError(agent, provider, strategy string, err error) {
	if err == nil {
		return
	}
	logLLM([]string{agent, provider, strategy + "-error"}, []llmSection{{Title: "ERROR", Body: err.Error()}})
}
