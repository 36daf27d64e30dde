// Package piidetect finds personal information in student text with a TEE
// model, so it can be anonymized before the text reaches a commercial model.
package piidetect

// Category is the kind of personal information a finding holds.
type Category string

const (
	CategoryName        Category = "name"
	CategoryPlace       Category = "place"
	CategoryInstitution Category = "institution"
	CategoryContact     Category = "contact"
	CategoryOther       Category = "other"
)

func (c Category) valid() bool {
	switch c {
	case CategoryName, CategoryPlace, CategoryInstitution, CategoryContact, CategoryOther:
		return true
	}
	return false
}

// Confidence is how sure the detector is about a finding.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// DefaultReplacement is used when the detector suggests no replacement.
const DefaultReplacement = "[ANONYMISERET]"

// Finding is one detected span. Only Kept changes after detection: the user
// sets it to keep the original text.
type Finding struct {
	ID          string     `json:"id"`
	Original    string     `json:"original"`
	Replacement string     `json:"replacement"`
	Category    Category   `json:"category"`
	Confidence  Confidence `json:"confidence"`
	Reasoning   string     `json:"reasoning"`
	Kept        bool       `json:"kept"`
}

// Result is the outcome of one detection.
type Result struct {
	Findings       []Finding `json:"findings"`
	ContextNotes   string    `json:"contextNotes"`
	AnonymizedText string    `json:"anonymizedText"`
	IsClean        bool      `json:"isClean"`
	ModelUsed      string    `json:"modelUsed,omitempty"`
}

// Request is the body of a detection call.
type Request struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Status reports progress through the fallback model list.
type Status struct {
	RetryAttempt int    `json:"retryAttempt"` // 1-based, within the current model
	MaxRetries   int    `json:"maxRetries"`
	ModelIndex   int    `json:"modelIndex"` // 0-based
	TotalModels  int    `json:"totalModels"`
	CurrentModel string `json:"currentModel"`
	LastError    string `json:"lastError,omitempty"`
}
