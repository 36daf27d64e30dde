package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gonkalabs/feedbackbot-go/internal/docparse"
	"github.com/gonkalabs/feedbackbot-go/internal/piidetect"
)

// NewDetectCmd creates the detect command.
func NewDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect [file]",
		Short: "Check a text for personal information",
		Long: `Send a text to the server's PII detection and print the findings as JSON.

The text is read from the file (.txt, .md or .docx) or from stdin. Detection
falls back through the server's detection models.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDetect,
	}
	cmd.Flags().StringP("note", "n", "", "Explanation passed to the detector, e.g. which names are fictional")
	return cmd
}

func runDetect(cmd *cobra.Command, args []string) error {
	note, err := cmd.Flags().GetString("note")
	if err != nil {
		return err
	}

	var text string
	in := cmd.InOrStdin()
	if len(args) == 1 {
		if text, err = docparse.File(args[0]); err != nil {
			return err
		}
	} else {
		// stdin holds the text; log in with FEEDBACKBOT_PASSWORD or a saved session.
		in = strings.NewReader("")
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), docparse.MaxFileBytes))
		if err != nil {
			return err
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to check")
	}

	ctx := cmd.Context()
	env, err := openClient(ctx, newPrompter(in, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := env.client.DetectPIIWithFallback(ctx, text, note, piidetect.FallbackOptions{
		OnStatus: func(st piidetect.Status) {
			fmt.Fprintf(cmd.ErrOrStderr(), "model %d/%d %s, forsøg %d/%d\n",
				st.ModelIndex+1, st.TotalModels, st.CurrentModel, st.RetryAttempt, st.MaxRetries)
		},
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
