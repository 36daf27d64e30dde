// Package onboarding sequences the steps a student goes through before the
// first chat message: the context wizard and the PII review.
package onboarding

import (
	"errors"
	"strings"

	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
)

// Step is a wizard page.
type Step int

const (
	StepWelcome Step = iota
	StepSubjectGrade
	StepAssignment
	StepStudentWork
	StepGradePreference
	StepModelSelection
)

var stepNames = [...]string{"welcome", "subject-grade", "assignment", "student-work", "grade-preference", "model-selection"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

var (
	ErrMissingSubject    = errors.New("onboarding: subject and grade are required")
	ErrMissingAssignment = errors.New("onboarding: assignment description is required")
	ErrUnknownModel      = errors.New("onboarding: model is not in the catalog")
	ErrWrongStep         = errors.New("onboarding: action not allowed on this step")
)

// AttachedFile is a document the student uploaded with their work.
type AttachedFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Context is everything the wizard collects.
type Context struct {
	Subject       string              `json:"subject"`
	Grade         string              `json:"grade"`
	Assignment    string              `json:"assignmentDescription"`
	StudentWork   string              `json:"studentWork"`
	File          *AttachedFile       `json:"studentWorkFile"`
	WantsGrade    bool                `json:"wantsGrade"`
	Model         string              `json:"model"`
	ModelPath     catalog.Path        `json:"modelPath,omitempty"`
	Anonymization *AnonymizationState `json:"anonymizationState,omitempty"`
}

// TextForAnonymization joins the typed work and the attached file's content,
// skipping blank parts.
func (c Context) TextForAnonymization() string {
	var parts []string
	if t := strings.TrimSpace(c.StudentWork); t != "" {
		parts = append(parts, t)
	}
	if c.File != nil {
		if t := strings.TrimSpace(c.File.Content); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Wizard walks a student through StepWelcome..StepModelSelection.
// It is not safe for concurrent use.
type Wizard struct {
	cat     *catalog.Catalog
	step    Step
	editing bool
	ctx     Context
}

// NewWizard starts a fresh wizard at the welcome page. A non-nil initial
// context opens it in editing mode on the subject page instead; editing
// never goes back to the welcome page.
func NewWizard(cat *catalog.Catalog, initial *Context) *Wizard {
	w := &Wizard{cat: cat}
	if initial != nil {
		w.ctx = *initial
		w.editing = true
		w.step = StepSubjectGrade
	}
	if w.ctx.Model == "" {
		w.ctx.Model = cat.DefaultForPath(catalog.PathPrivacyFirst)
	}
	if m, ok := cat.ByID(w.ctx.Model); ok {
		w.ctx.ModelPath = m.Path
	}
	return w
}

func (w *Wizard) Step() Step { return w.step }

func (w *Wizard) Editing() bool { return w.editing }

func (w *Wizard) Context() Context { return w.ctx }

func (w *Wizard) minStep() Step {
	if w.editing {
		return StepSubjectGrade
	}
	return StepWelcome
}

// Start leaves the welcome page.
func (w *Wizard) Start() error {
	if w.step != StepWelcome {
		return ErrWrongStep
	}
	w.step = StepSubjectGrade
	return nil
}

// Next validates the current page and moves forward. It stops at model
// selection; use Finish there.
func (w *Wizard) Next() error {
	switch w.step {
	case StepWelcome:
		return w.Start()
	case StepSubjectGrade:
		if strings.TrimSpace(w.ctx.Subject) == "" || strings.TrimSpace(w.ctx.Grade) == "" {
			return ErrMissingSubject
		}
	case StepAssignment:
		if strings.TrimSpace(w.ctx.Assignment) == "" {
			return ErrMissingAssignment
		}
	case StepModelSelection:
		return ErrWrongStep
	}
	w.step++
	return nil
}

// Back moves one page back.
func (w *Wizard) Back() error {
	if w.step <= w.minStep() {
		return ErrWrongStep
	}
	w.step--
	return nil
}

// Skip passes over the student work page without entering anything.
func (w *Wizard) Skip() error {
	if w.step != StepStudentWork {
		return ErrWrongStep
	}
	w.step++
	return nil
}

func (w *Wizard) SetSubjectGrade(subject, grade string) {
	w.ctx.Subject = strings.TrimSpace(subject)
	w.ctx.Grade = strings.TrimSpace(grade)
}

func (w *Wizard) SetAssignment(text string) { w.ctx.Assignment = text }

// SetStudentWork replaces the typed work. Any earlier review no longer
// applies.
func (w *Wizard) SetStudentWork(text string) {
	w.ctx.StudentWork = text
	w.ctx.Anonymization = nil
}

// AttachFile sets or, with nil, removes the attached file.
func (w *Wizard) AttachFile(f *AttachedFile) {
	w.ctx.File = f
	w.ctx.Anonymization = nil
}

func (w *Wizard) SetWantsGrade(v bool) { w.ctx.WantsGrade = v }

// SelectModel picks the chat model and with it the model path.
func (w *Wizard) SelectModel(id string) error {
	m, ok := w.cat.ByID(id)
	if !ok {
		return ErrUnknownModel
	}
	w.ctx.Model = m.ID
	w.ctx.ModelPath = m.Path
	return nil
}

// NeedsAnonymization reports whether unreviewed student work is about to be
// sent to a commercial model.
func (w *Wizard) NeedsAnonymization() bool {
	if w.ctx.Anonymization != nil {
		return false
	}
	m, ok := w.cat.ByID(w.ctx.Model)
	if ok && m.TEE() {
		return false
	}
	return w.ctx.TextForAnonymization() != ""
}

// Finish completes the wizard. The bool reports whether the returned context
// still needs PII review before it may be sent.
func (w *Wizard) Finish() (Context, bool, error) {
	if w.step != StepModelSelection {
		return Context{}, false, ErrWrongStep
	}
	if !w.cat.IsValid(w.ctx.Model) {
		return Context{}, false, ErrUnknownModel
	}
	return w.ctx, w.NeedsAnonymization(), nil
}

// ApplyAnonymization replaces the student's work with the reviewed text. The
// file content was part of the reviewed text, so it is cleared.
func (w *Wizard) ApplyAnonymization(st AnonymizationState) {
	w.ctx.StudentWork = st.AnonymizedText
	if w.ctx.File != nil {
		f := *w.ctx.File
		f.Content = ""
		w.ctx.File = &f
	}
	w.ctx.Anonymization = &st
}
