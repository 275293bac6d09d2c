package jsonutil

import "strings"

var thinkTags = [][2]string{
	{"<think>", "</think>"},
	{"<thinking>", "</thinking>"},
}

// SplitReasoning separates <think>…</think> blocks emitted by reasoning models
// from the answer text. An unterminated block swallows the rest of the text.
func SplitReasoning(raw string) (reasoning, answer string) {
	answer = raw
	var parts []string
	for _, tag := range thinkTags {
		for {
			lower := strings.ToLower(answer)
			start := strings.Index(lower, tag[0])
			if start == -1 {
				break
			}
			bodyStart := start + len(tag[0])
			end := strings.Index(lower[bodyStart:], tag[1])
			if end == -1 {
				parts = append(parts, strings.TrimSpace(answer[bodyStart:]))
				answer = answer[:start]
				break
			}
			parts = append(parts, strings.TrimSpace(answer[bodyStart:bodyStart+end]))
			answer = answer[:start] + answer[bodyStart+end+len(tag[1]):]
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), strings.TrimSpace(answer)
}
