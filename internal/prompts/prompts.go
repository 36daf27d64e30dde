// Package prompts holds the system prompts sent ahead of every chat and PII
// detection request.
package prompts

import (
	"embed"
	"strings"
)

//go:embed default.md pii_detection.md subjects/*.md
var files embed.FS

// aliases maps subject keys used by the onboarding wizard to the prompt that
// covers them.
var aliases = map[string]string{
	"naturfag":            "fysikkemi",
	"kristendomskundskab": "kristendom",
}

var (
	defaultPrompt = mustRead("default.md")
	piiSystem     = mustRead("pii_detection.md")
	subjects      = loadSubjects()
)

func mustRead(name string) string {
	b, err := files.ReadFile(name)
	if err != nil {
		panic("prompts: " + err.Error())
	}
	return string(b)
}

func loadSubjects() map[string]string {
	entries, err := files.ReadDir("subjects")
	if err != nil {
		panic("prompts: " + err.Error())
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		key := strings.TrimSuffix(e.Name(), ".md")
		out[key] = mustRead("subjects/" + e.Name())
	}
	return out
}

// Default returns the general feedback prompt.
func Default() string { return defaultPrompt }

// HasSubject reports whether subject (or its alias) has a dedicated prompt.
func HasSubject(subject string) bool {
	_, ok := subjects[resolve(subject)]
	return ok
}

func resolve(subject string) string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if a, ok := aliases[subject]; ok {
		return a
	}
	return subject
}

// System returns the prompt for subject. Unknown or empty subjects get the
// default prompt.
func System(subject string) string {
	if p, ok := subjects[resolve(subject)]; ok {
		return p
	}
	return defaultPrompt
}

// PIIDetectionSystem is the system prompt for the PII detector.
func PIIDetectionSystem() string { return piiSystem }

const piiUserPrefix = "Analysér følgende tekst for personhenførbare oplysninger og returnér resultatet som JSON:\n\n---\n"

// PIIDetectionUser builds the user message for a PII detection call. A
// non-empty note is appended as the user's remark.
func PIIDetectionUser(text, note string) string {
	var b strings.Builder
	b.WriteString(piiUserPrefix)
	b.WriteString(text)
	if note = strings.TrimSpace(note); note != "" {
		b.WriteString("\n\n---\nBrugerens bemærkning: ")
		b.WriteString(note)
	}
	return b.String()
}
