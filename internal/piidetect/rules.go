package piidetect

import (
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
)

type span struct {
	start, end int
	rule       *rule
}

type rule struct {
	re          *regexp.Regexp
	category    Category
	replacement string
	reasoning   string
	valid       func(match string) bool
}

// rules match contact details and CPR numbers, which have a fixed shape and
// are found by pattern in addition to the model.
var rules = []*rule{
	{
		re:          regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		category:    CategoryContact,
		replacement: "[EMAIL]",
		reasoning:   "E-mailadresse",
	},
	{
		re:          regexp.MustCompile(`\d{6}-?\d{4}`),
		category:    CategoryOther,
		replacement: "[CPR]",
		reasoning:   "CPR-nummer",
		valid:       plausibleCPR,
	},
	{
		// A bare run of eight digits is as likely a number in the work
		// itself, so only +45 numbers or spaced digit pairs count.
		re:          regexp.MustCompile(`\+45 ?\d{2} ?\d{2} ?\d{2} ?\d{2}|\d{2} \d{2} \d{2} \d{2}`),
		category:    CategoryContact,
		replacement: "[TELEFON]",
		reasoning:   "Telefonnummer",
	},
}

var boundary = func() [256]bool {
	var t [256]bool
	for _, b := range []byte(" \t\n\r<>(),;:.!?[]{}\"'`/") {
		t[b] = true
	}
	return t
}()

// plausibleCPR checks the ddmmyy date part.
func plausibleCPR(s string) bool {
	d := (int(s[0]-'0'))*10 + int(s[1]-'0')
	m := (int(s[2]-'0'))*10 + int(s[3]-'0')
	return d >= 1 && d <= 31 && m >= 1 && m <= 12
}

// matchRules returns the non-overlapping rule matches in text. Matches must
// stand alone: a match glued to a letter or digit is part of something else.
func matchRules(text string) []span {
	var spans []span
	for _, r := range rules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			sp := span{start: loc[0], end: loc[1], rule: r}
			if !standsAlone(text, sp) {
				continue
			}
			if r.valid != nil && !r.valid(text[sp.start:sp.end]) {
				continue
			}
			spans = append(spans, sp)
		}
	}
	// Longest first at each position, earlier rules win ties.
	slices.SortStableFunc(spans, func(a, b span) int {
		if a.start != b.start {
			return a.start - b.start
		}
		return (b.end - b.start) - (a.end - a.start)
	})
	out := spans[:0]
	lastEnd := -1
	for _, sp := range spans {
		if sp.start >= lastEnd {
			out = append(out, sp)
			lastEnd = sp.end
		}
	}
	return out
}

func standsAlone(text string, sp span) bool {
	if sp.start > 0 && !boundary[text[sp.start-1]] {
		return false
	}
	// A trailing period ends the sentence, not the match.
	return sp.end >= len(text) || boundary[text[sp.end]]
}

// RuleFindings finds contact details and CPR numbers by pattern. Each
// distinct value is reported once.
func RuleFindings(text string) []Finding {
	var (
		out  []Finding
		seen = map[string]bool{}
	)
	for _, sp := range matchRules(text) {
		orig := text[sp.start:sp.end]
		if seen[orig] {
			continue
		}
		seen[orig] = true
		out = append(out, Finding{
			ID:          "pii-" + uuid.NewString(),
			Original:    orig,
			Replacement: sp.rule.replacement,
			Category:    sp.rule.category,
			Confidence:  ConfidenceHigh,
			Reasoning:   sp.rule.reasoning,
		})
	}
	return out
}

// mergeFindings adds the rule findings the model did not already report.
func mergeFindings(model, extra []Finding) []Finding {
	for _, f := range extra {
		covered := slices.ContainsFunc(model, func(m Finding) bool {
			return strings.Contains(m.Original, f.Original)
		})
		if !covered {
			model = append(model, f)
		}
	}
	return model
}
