package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/docparse"
	"github.com/gonkalabs/feedbackbot-go/internal/onboarding"
	"github.com/gonkalabs/feedbackbot-go/internal/piidetect"
	"github.com/gonkalabs/feedbackbot-go/internal/store"
)

// onboard runs the wizard in the terminal. A non-nil initial context is
// edited rather than asked for from scratch.
func (e *clientEnv) onboard(ctx context.Context, cat *catalog.Catalog, initial *onboarding.Context) (*onboarding.Context, error) {
	p := e.prompt
	w := onboarding.NewWizard(cat, initial)

	for {
		var err error
		switch w.Step() {
		case onboarding.StepWelcome:
			fmt.Fprintln(p.out, "Velkommen til feedbackbotten. Svar på et par spørgsmål om din opgave.")
			err = w.Start()

		case onboarding.StepSubjectGrade:
			cur := w.Context()
			subject, serr := p.line(withDefault("Fag", cur.Subject))
			if serr != nil {
				return nil, serr
			}
			grade, gerr := p.line(withDefault("Klassetrin", cur.Grade))
			if gerr != nil {
				return nil, gerr
			}
			w.SetSubjectGrade(or(subject, cur.Subject), or(grade, cur.Grade))
			err = w.Next()

		case onboarding.StepAssignment:
			text, aerr := p.block("Beskriv opgaven")
			if aerr != nil {
				return nil, aerr
			}
			if text != "" {
				w.SetAssignment(text)
			}
			err = w.Next()

		case onboarding.StepStudentWork:
			text, berr := p.block("Indsæt dit arbejde indtil nu (tom = spring over)")
			if berr != nil {
				return nil, berr
			}
			path, ferr := p.line("Fil at vedhæfte (.txt, .md, .docx; tom = ingen): ")
			if ferr != nil {
				return nil, ferr
			}
			if path != "" {
				content, derr := docparse.File(path)
				if derr != nil {
					fmt.Fprintln(p.out, "Kunne ikke læse filen:", derr)
					continue
				}
				w.AttachFile(&onboarding.AttachedFile{Name: path, Content: content})
			}
			if text == "" && path == "" && w.Context().TextForAnonymization() == "" {
				err = w.Skip()
				break
			}
			if text != "" {
				w.SetStudentWork(text)
			}
			err = w.Next()

		case onboarding.StepGradePreference:
			wants, yerr := p.yesNo("Vil du have en vejledende karakter?")
			if yerr != nil {
				return nil, yerr
			}
			w.SetWantsGrade(wants)
			err = w.Next()

		case onboarding.StepModelSelection:
			if serr := e.selectModel(ctx, cat, w); serr != nil {
				return nil, serr
			}
			octx, needsReview, ferr := w.Finish()
			if ferr != nil {
				fmt.Fprintln(p.out, ferr)
				continue
			}
			if needsReview {
				st, rerr := e.review(ctx, octx.TextForAnonymization())
				if rerr != nil {
					return nil, rerr
				}
				w.ApplyAnonymization(*st)
				if err := e.store.SaveAnonymization(ctx, *st); err != nil {
					slog.Warn("chat: save anonymization failed", "err", err)
				}
				octx = w.Context()
			}
			path := octx.ModelPath
			if err := e.store.SaveModelPath(ctx, store.ModelPathState{Selected: true, Path: &path}); err != nil {
				slog.Warn("chat: save model path failed", "err", err)
			}
			return &octx, nil
		}

		if err != nil {
			fmt.Fprintln(p.out, err)
		}
	}
}

func (e *clientEnv) selectModel(ctx context.Context, cat *catalog.Catalog, w *onboarding.Wizard) error {
	p := e.prompt
	cur := w.Context().Model
	fmt.Fprintln(p.out, "Vælg model:")
	for i, m := range cat.Models {
		mark := " "
		if m.ID == cur {
			mark = "*"
		}
		kind := "TEE, privat"
		if !m.TEE() {
			kind = "kommerciel, tekst anonymiseres"
		}
		fmt.Fprintf(p.out, "%s %d) %s - %s [%s]\n", mark, i+1, m.Name, kind, m.PricingTier)
	}
	for {
		ans, err := p.line("Nummer (tom = behold *): ")
		if err != nil {
			return err
		}
		if ans == "" {
			return nil
		}
		n, err := strconv.Atoi(ans)
		if err != nil || n < 1 || n > len(cat.Models) {
			fmt.Fprintln(p.out, "Ugyldigt valg.")
			continue
		}
		id := cat.Models[n-1].ID
		if err := e.ensureEnhanced(ctx, id); err != nil {
			fmt.Fprintln(p.out, "Ingen adgang til udvidet kvalitet:", err)
			continue
		}
		return w.SelectModel(id)
	}
}

// review runs the PII review of text until the student accepts an outcome.
func (e *clientEnv) review(ctx context.Context, text string) (*onboarding.AnonymizationState, error) {
	p := e.prompt
	r := onboarding.NewReview(text)
	detect := func(ctx context.Context, req piidetect.Request) (*piidetect.Result, error) {
		fmt.Fprintln(p.out, "Tjekker for personoplysninger...")
		return e.client.DetectPIIWithFallback(ctx, req.Text, req.Context, piidetect.FallbackOptions{
			OnStatus: func(st piidetect.Status) {
				if st.RetryAttempt > 1 || st.ModelIndex > 0 {
					fmt.Fprintf(p.out, "  model %d/%d, forsøg %d/%d\n", st.ModelIndex+1, st.TotalModels, st.RetryAttempt, st.MaxRetries)
				}
			},
		})
	}

	for {
		var ev onboarding.Event
		switch r.State() {
		case onboarding.StateComplete:
			return r.Outcome(), nil

		case onboarding.StateDetecting, onboarding.StateVerification:
			if err := r.Detect(ctx, detect); err != nil {
				return nil, err
			}
			continue

		case onboarding.StateReview:
			printFindings(p, r.Findings())
			fmt.Fprintln(p.out, "\nForslag:\n"+r.Result().AnonymizedText)
			ok, err := p.yesNo("\nAnonymiser som foreslået?")
			if err != nil {
				return nil, err
			}
			ev = onboarding.Decline{}
			if ok {
				ev = onboarding.AcceptAll{}
			}

		case onboarding.StateDecline:
			fmt.Fprintln(p.out, "Hvorfor?\n  1) Jeg har allerede fjernet oplysningerne\n  2) Det er ikke personoplysninger\n  3) Jeg vil beholde nogle af dem\n  0) Tilbage")
			ans, err := p.line("> ")
			if err != nil {
				return nil, err
			}
			switch ans {
			case "1":
				ev = onboarding.ChooseReason{Reason: onboarding.ReasonAlreadyRemoved}
			case "2":
				ev = onboarding.ChooseReason{Reason: onboarding.ReasonFalsePositive}
			case "3":
				ev = onboarding.ChooseReason{Reason: onboarding.ReasonSelectiveKeep}
			default:
				ev = onboarding.Cancel{}
			}

		case onboarding.StateContextInput:
			note, err := p.block("Forklar hvorfor, fx at navnene er fra en roman")
			if err != nil {
				return nil, err
			}
			ev = onboarding.SubmitContext{Note: note}
			if note == "" {
				ev = onboarding.Cancel{}
			}

		case onboarding.StateSelectiveKeep:
			findings := r.Findings()
			printFindings(p, findings)
			ans, err := p.line("Nummer for at skifte behold/anonymiser, \"ok\" for at fortsætte, \"0\" for tilbage: ")
			if err != nil {
				return nil, err
			}
			switch ans {
			case "ok":
				ev = onboarding.Confirm{}
			case "0":
				ev = onboarding.Cancel{}
			default:
				n, err := strconv.Atoi(ans)
				if err != nil || n < 1 || n > len(findings) {
					continue
				}
				f := findings[n-1]
				ev = onboarding.ToggleKeep{ID: f.ID, Kept: !f.Kept}
			}

		case onboarding.StateWarning:
			fmt.Fprintln(p.out, "Advarsel: de beholdte oplysninger sendes uændret til en kommerciel model.")
			ok, err := p.yesNo("Fortsæt alligevel?")
			if err != nil {
				return nil, err
			}
			ev = onboarding.Cancel{}
			if ok {
				ev = onboarding.Confirm{}
			}

		case onboarding.StateError:
			fmt.Fprintln(p.out, "Tjekket fejlede:", r.Err())
			ok, err := p.yesNo("Prøv igen?")
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.New("PII-tjek afbrudt")
			}
			ev = onboarding.Retry{}
		}

		if err := r.Handle(ev); err != nil {
			fmt.Fprintln(p.out, err)
		}
	}
}

func printFindings(p *prompter, findings []piidetect.Finding) {
	fmt.Fprintf(p.out, "Fandt %d mulige personoplysninger:\n", len(findings))
	for i, f := range findings {
		action := "-> " + f.Replacement
		if f.Kept {
			action = "(beholdes)"
		}
		fmt.Fprintf(p.out, "  %d) %q %s [%s, %s] %s\n", i+1, f.Original, action, f.Category, f.Confidence, f.Reasoning)
	}
}

func withDefault(label, cur string) string {
	if cur == "" {
		return label + ": "
	}
	return fmt.Sprintf("%s [%s]: ", label, cur)
}

func or(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
