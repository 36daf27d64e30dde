// Package catalog lists the chat and PII-detection models the service offers,
// along with their pricing.
package catalog

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Path is the privacy path a model belongs to.
type Path string

const (
	// PathPrivacyFirst models run in a trusted execution environment (TEE).
	PathPrivacyFirst Path = "privacy-first"
	// PathEnhancedQuality models are commercial; text must be anonymized first.
	PathEnhancedQuality Path = "enhanced-quality"
)

// PricingTier drives the badge shown next to a model.
type PricingTier string

const (
	TierBudget   PricingTier = "budget"
	TierStandard PricingTier = "standard"
	TierPremium  PricingTier = "premium"
)

// Model describes one selectable chat model.
type Model struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Provider    string      `yaml:"provider" json:"provider"`
	Path        Path        `yaml:"path" json:"path"`
	PricingTier PricingTier `yaml:"pricing_tier" json:"pricingTier"`
	ReleaseDate string      `yaml:"release_date" json:"releaseDate"`
	Pricing     Pricing     `yaml:"pricing" json:"pricing"`
}

// TEE reports whether the model runs in a trusted execution environment.
func (m Model) TEE() bool { return m.Path == PathPrivacyFirst }

// Catalog is the set of models offered by a deployment.
type Catalog struct {
	Models []Model `yaml:"models" json:"models"`
	// PIIModels is the ordered fallback list for PII detection, primary first.
	PIIModels []string `yaml:"pii_models" json:"piiModels"`
	// Recommended maps a subject to its preferred model per path.
	Recommended map[string]map[Path]string `yaml:"recommended" json:"recommended,omitempty"`
}

// DefaultModelID is used when a request does not name a model.
const DefaultModelID = "TEE/DeepSeek-v3.2"

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Models: []Model{
			{ID: "TEE/DeepSeek-v3.2", Name: "DeepSeek V3.2", Provider: "deepseek", Path: PathPrivacyFirst, PricingTier: TierBudget, ReleaseDate: "Dec 2025", Pricing: Pricing{Input: 0.27, Output: 1.1}},
			{ID: "TEE/gpt-oss-120b", Name: "GPT-OSS 120B", Provider: "openai", Path: PathPrivacyFirst, PricingTier: TierStandard, ReleaseDate: "Aug 2025", Pricing: Pricing{Input: 1.5, Output: 2.0}},
			{ID: "TEE/glm-4.6", Name: "GLM 4.6", Provider: "zhipu", Path: PathPrivacyFirst, PricingTier: TierStandard, ReleaseDate: "Dec 2025", Pricing: Pricing{Input: 0.5, Output: 1.5}},
			{ID: "anthropic/claude-sonnet-4.5", Name: "Claude Sonnet 4.5", Provider: "anthropic", Path: PathEnhancedQuality, PricingTier: TierPremium, ReleaseDate: "Sep 2025", Pricing: Pricing{Input: 3.0, Output: 15.0}},
			{ID: "openai/gpt-5", Name: "GPT-5", Provider: "openai", Path: PathEnhancedQuality, PricingTier: TierPremium, ReleaseDate: "Aug 2025", Pricing: Pricing{Input: 1.25, Output: 10.0}},
			{ID: "google/gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: "google", Path: PathEnhancedQuality, PricingTier: TierPremium, ReleaseDate: "Jun 2025", Pricing: Pricing{Input: 1.25, Output: 10.0}},
		},
		PIIModels: []string{
			"TEE/qwen3-30b-a3b-instruct-2507",
			"TEE/gemma-3-27b-it",
			"TEE/DeepSeek-v3.2",
		},
		Recommended: map[string]map[Path]string{
			"matematik":   {PathPrivacyFirst: "TEE/gpt-oss-120b", PathEnhancedQuality: "openai/gpt-5"},
			"fysikkemi":   {PathPrivacyFirst: "TEE/gpt-oss-120b", PathEnhancedQuality: "openai/gpt-5"},
			"dansk":       {PathPrivacyFirst: "TEE/DeepSeek-v3.2", PathEnhancedQuality: "anthropic/claude-sonnet-4.5"},
			"engelsk":     {PathPrivacyFirst: "TEE/DeepSeek-v3.2", PathEnhancedQuality: "anthropic/claude-sonnet-4.5"},
			"historie":    {PathPrivacyFirst: "TEE/glm-4.6", PathEnhancedQuality: "google/gemini-2.5-pro"},
			"samfundsfag": {PathPrivacyFirst: "TEE/glm-4.6", PathEnhancedQuality: "google/gemini-2.5-pro"},
		},
	}
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("no models defined")
	}
	seen := map[string]bool{}
	for i, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("model %d has no id", i+1)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		switch m.Path {
		case PathPrivacyFirst, PathEnhancedQuality:
		default:
			return fmt.Errorf("model %q has unknown path %q", m.ID, m.Path)
		}
	}
	if len(c.PIIModels) == 0 {
		return fmt.Errorf("no pii_models defined")
	}
	return nil
}

// ByID returns the model with id.
func (c *Catalog) ByID(id string) (Model, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// IsValid reports whether id is a selectable chat model.
func (c *Catalog) IsValid(id string) bool {
	_, ok := c.ByID(id)
	return ok
}

// IsPIIModel reports whether id is one of the PII detection models.
func (c *Catalog) IsPIIModel(id string) bool {
	return slices.Contains(c.PIIModels, id)
}

// DefaultForPath returns the first model of path, or DefaultModelID.
func (c *Catalog) DefaultForPath(p Path) string {
	for _, m := range c.Models {
		if m.Path == p {
			return m.ID
		}
	}
	return DefaultModelID
}

// Fallback lists the alternatives offered after a model exhausted its retries.
type Fallback struct {
	Models        []Model `json:"models"`
	RecommendedID string  `json:"recommendedId,omitempty"`
}

// FallbackModels returns the models on the same path as failedID, minus
// failedID itself, with the subject's recommendation when it is among them.
func (c *Catalog) FallbackModels(failedID, subject string) Fallback {
	path := PathPrivacyFirst
	if m, ok := c.ByID(failedID); ok {
		path = m.Path
	}
	var fb Fallback
	for _, m := range c.Models {
		if m.Path == path && m.ID != failedID {
			fb.Models = append(fb.Models, m)
		}
	}
	if rec, ok := c.Recommended[subject][path]; ok && rec != failedID {
		fb.RecommendedID = rec
	} else if len(fb.Models) > 0 {
		fb.RecommendedID = fb.Models[0].ID
	}
	return fb
}
