package jsonutil

import (
	"strings"
)

const codeFence = "```"

// ExtractJSON pulls the first JSON array or object out of free-form model text.
// Fenced blocks win; otherwise the earliest balanced '[' or '{' span is used.
func ExtractJSON(raw string) (string, bool) {
	out, _, ok := extract(raw)
	return out, ok
}

func extract(raw string) (string, int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", -1, false
	}
	if block, offset, ok := extractFromFence(raw); ok {
		return block, offset, true
	}
	return extractBalanced(raw)
}

func extractFromFence(raw string) (string, int, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", -1, false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", -1, false
	}
	block := rest[:end]
	offset := start + len(codeFence)
	block = strings.TrimLeft(block, "\r\n")
	// drop a language tag such as ```json
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
			offset += idx + 1
		}
	} else if strings.HasPrefix(block, "json") {
		block = block[len("json"):]
		offset += len("json")
	}
	if out, rel, ok := extractBalanced(block); ok {
		return out, offset + rel, true
	}
	return "", -1, false
}

func extractBalanced(raw string) (string, int, bool) {
	start := strings.IndexAny(raw, "[{")
	for start != -1 {
		if out, ok := scanBalanced(raw, start); ok {
			return out, start, true
		}
		next := strings.IndexAny(raw[start+1:], "[{")
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", -1, false
}

func scanBalanced(raw string, start int) (string, bool) {
	open := raw[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return strings.TrimSpace(raw[start : i+1]), true
			}
		}
	}
	return "", false
}
