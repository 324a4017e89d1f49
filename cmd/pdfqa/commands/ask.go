package commands

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfqa/internal/answer"
	"github.com/54b3r/pdfqa/internal/logging"
	"github.com/54b3r/pdfqa/internal/tracing"
)

// askOutput is the --json shape of `pdfqa ask`.
type askOutput struct {
	Answer  string          `json:"answer"`
	Outcome answer.Outcome  `json:"outcome"`
	Sources []answer.Source `json:"sources"`
}

// NewAskCmd constructs the `pdfqa ask` command, which answers a single
// question against the index and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var (
		topK    int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the indexed documents",
		Long: `Retrieve the passages nearest to the question, hand them to the chat
model and print its answer followed by the cited file and page numbers.

Run 'pdfqa index' first.

Examples:
  pdfqa ask "what is the warranty period?"
  pdfqa ask -k 8 "list every safety warning about the battery"
  pdfqa ask --json "how do I reset the device?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if flush, ok := tracing.Install(); ok {
				defer flush()
			}

			stack, err := buildQueryStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer stack.Close()

			res := stack.answer.AnswerK(ctx, strings.Join(args, " "), topK)
			if res.Outcome == answer.OutcomeError {
				return fmt.Errorf("ask: %w", res.Err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				sources := res.Sources
				if sources == nil {
					sources = []answer.Source{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(askOutput{Answer: res.Text, Outcome: res.Outcome, Sources: sources})
			}

			fmt.Fprintln(out, res.Text)
			if len(res.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for _, s := range res.Sources {
					fmt.Fprintf(out, "  - %s (distance %.3f)\n", s, s.Distance)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Passages to retrieve (default: $RETRIEVAL_TOP_K or 5)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the answer as JSON")

	return cmd
}
