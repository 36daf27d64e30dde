package piidetect

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrUnparseable is returned when the model output is not the expected JSON.
var ErrUnparseable = errors.New("piidetect: invalid JSON in model output")

// RawFinding is a finding as the detector model returns it.
type RawFinding struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Category    string `json:"category"`
	Confidence  string `json:"confidence"`
	Reasoning   string `json:"reasoning"`
}

type rawResponse struct {
	Findings     []RawFinding `json:"findings"`
	ContextNotes string       `json:"context_notes"`
}

// ParseModelOutput decodes the detector's answer. Code fences and <think>
// blocks around the JSON are tolerated.
func ParseModelOutput(content string) ([]Finding, string, error) {
	s := stripThinkBlock(strings.TrimSpace(content))
	s = stripCodeFence(s)
	if !strings.HasPrefix(s, "{") {
		s = extractJSONObject(s)
	}
	var raw rawResponse
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return ParseFindings(raw.Findings), raw.ContextNotes, nil
}

// ParseFindings turns raw detector findings into Findings. The detector's
// output is untrusted: blank originals are dropped and unknown enum values
// fall back to other/medium.
func ParseFindings(raw []RawFinding) []Finding {
	out := make([]Finding, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Original) == "" {
			continue
		}
		f := Finding{
			ID:          "pii-" + uuid.NewString(),
			Original:    r.Original,
			Replacement: r.Replacement,
			Category:    Category(r.Category),
			Confidence:  Confidence(r.Confidence),
			Reasoning:   r.Reasoning,
		}
		if f.Replacement == "" {
			f.Replacement = DefaultReplacement
		}
		if !f.Category.valid() {
			f.Category = CategoryOther
		}
		if !f.Confidence.valid() {
			f.Confidence = ConfidenceMedium
		}
		out = append(out, f)
	}
	return out
}

// ApplyAnonymizations replaces every occurrence of each non-kept finding's
// original with its replacement. Longer originals go first so a finding that
// is a substring of another cannot split it. Originals missing from text are
// ignored.
func ApplyAnonymizations(text string, findings []Finding) string {
	active := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if !f.Kept && f.Original != "" {
			active = append(active, f)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return len(active[i].Original) > len(active[j].Original)
	})
	for _, f := range active {
		text = strings.ReplaceAll(text, f.Original, f.Replacement)
	}
	return text
}

// stripThinkBlock removes a <think>...</think> block some models emit
// before the answer.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```")
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// extractJSONObject finds the outermost {...} substring in s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return s
	}
	return s[start : end+1]
}
