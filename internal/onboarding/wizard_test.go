package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
)

func TestWizard_HappyPath(t *testing.T) {
	w := NewWizard(catalog.Default(), nil)
	assert.Equal(t, StepWelcome, w.Step())
	assert.ErrorIs(t, w.Back(), ErrWrongStep)

	require.NoError(t, w.Start())
	assert.ErrorIs(t, w.Next(), ErrMissingSubject)
	w.SetSubjectGrade("biologi", "8. klasse")
	require.NoError(t, w.Next())

	assert.ErrorIs(t, w.Next(), ErrMissingAssignment)
	w.SetAssignment("Skriv om fotosyntese")
	require.NoError(t, w.Next())

	assert.Equal(t, StepStudentWork, w.Step())
	require.NoError(t, w.Skip())
	assert.ErrorIs(t, w.Skip(), ErrWrongStep)
	w.SetWantsGrade(true)
	require.NoError(t, w.Next())

	assert.Equal(t, StepModelSelection, w.Step())
	assert.ErrorIs(t, w.Next(), ErrWrongStep)

	ctx, needsReview, err := w.Finish()
	require.NoError(t, err)
	assert.False(t, needsReview)
	assert.Equal(t, catalog.DefaultModelID, ctx.Model)
	assert.Equal(t, catalog.PathPrivacyFirst, ctx.ModelPath)
	assert.True(t, ctx.WantsGrade)
	assert.Equal(t, "biologi", ctx.Subject)
}

func TestWizard_FinishOnlyOnLastStep(t *testing.T) {
	w := NewWizard(catalog.Default(), nil)
	_, _, err := w.Finish()
	assert.ErrorIs(t, err, ErrWrongStep)
}

func TestWizard_Editing(t *testing.T) {
	w := NewWizard(catalog.Default(), &Context{Subject: "dansk", Grade: "9", Assignment: "Essay", Model: "openai/gpt-5"})
	assert.True(t, w.Editing())
	assert.Equal(t, StepSubjectGrade, w.Step())
	assert.Equal(t, catalog.PathEnhancedQuality, w.Context().ModelPath)
	assert.ErrorIs(t, w.Back(), ErrWrongStep)
	assert.ErrorIs(t, w.Start(), ErrWrongStep)

	require.NoError(t, w.Next())
	require.NoError(t, w.Back())
	assert.Equal(t, StepSubjectGrade, w.Step())
}

func TestWizard_NeedsAnonymization(t *testing.T) {
	w := NewWizard(catalog.Default(), nil)
	require.NoError(t, w.SelectModel("anthropic/claude-sonnet-4.5"))
	assert.False(t, w.NeedsAnonymization(), "nothing to review")

	w.AttachFile(&AttachedFile{Name: "opgave.docx", Content: "Anna Jensen skrev"})
	assert.True(t, w.NeedsAnonymization())

	require.NoError(t, w.SelectModel("TEE/glm-4.6"))
	assert.False(t, w.NeedsAnonymization(), "TEE models see the raw text")

	assert.ErrorIs(t, w.SelectModel("nope"), ErrUnknownModel)
	assert.Equal(t, "TEE/glm-4.6", w.Context().Model)
}

func TestWizard_ApplyAnonymization(t *testing.T) {
	w := NewWizard(catalog.Default(), nil)
	require.NoError(t, w.SelectModel("openai/gpt-5"))
	w.SetStudentWork("Jeg heder Anna")
	w.AttachFile(&AttachedFile{Name: "a.txt", Content: "Anna igen"})
	ctx := w.Context()
	assert.Equal(t, "Jeg heder Anna\n\nAnna igen", ctx.TextForAnonymization())

	w.ApplyAnonymization(AnonymizationState{OriginalText: ctx.TextForAnonymization(), AnonymizedText: "Jeg heder [ELEV]\n\n[ELEV] igen"})
	got := w.Context()
	assert.Equal(t, "Jeg heder [ELEV]\n\n[ELEV] igen", got.StudentWork)
	assert.Equal(t, "a.txt", got.File.Name)
	assert.Empty(t, got.File.Content)
	assert.Equal(t, "Anna igen", ctx.File.Content, "earlier snapshots are not mutated")
	assert.False(t, w.NeedsAnonymization())

	w.SetStudentWork("Ny tekst med Peter")
	assert.Nil(t, w.Context().Anonymization)
	assert.True(t, w.NeedsAnonymization())
}

func TestContext_TextForAnonymization(t *testing.T) {
	assert.Empty(t, (&Context{StudentWork: "  "}).TextForAnonymization())
	assert.Equal(t, "fil", (&Context{File: &AttachedFile{Content: " fil "}}).TextForAnonymization())
}

func TestWizard_ContextTextWithoutCopy(t *testing.T) {
	w := NewWizard(catalog.Default(), nil)
	assert.Empty(t, w.Context().TextForAnonymization())
	w.AttachFile(&AttachedFile{Name: "opgave.txt", Content: "Anna"})
	assert.Equal(t, "Anna", w.Context().TextForAnonymization())
}
