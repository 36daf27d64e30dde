// Package sse parses the "data: ..." frames of an OpenAI-style chat
// completion event stream.
package sse

import (
	"encoding/json"
	"strings"
)

// Done is the payload that terminates a stream.
const Done = "[DONE]"

// Usage holds the token counts reported at the end of a stream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chunk is one streamed completion frame.
type Chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// Content returns choices[0].delta.content, or "" when absent.
func (c *Chunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// Kind says what ParseLine found.
type Kind int

const (
	KindNone      Kind = iota // blank, comment or non-data line
	KindChunk                 // a decoded frame
	KindDone                  // the [DONE] sentinel
	KindMalformed             // a data line whose payload is not valid JSON
)

// ParseLine decodes a single line of the stream (without its trailing newline).
func ParseLine(line string) (Kind, *Chunk) {
	line = strings.TrimRight(line, "\r")
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return KindNone, nil
	}
	data = strings.TrimSpace(data)
	if data == Done {
		return KindDone, nil
	}
	if data == "" {
		return KindNone, nil
	}
	var c Chunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return KindMalformed, nil
	}
	return KindChunk, &c
}
