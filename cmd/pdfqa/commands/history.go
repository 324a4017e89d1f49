package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfqa/internal/logging"
)

// NewHistoryCmd constructs the `pdfqa history` command, which prints the
// most recent answered questions.
func NewHistoryCmd() *cobra.Command {
	var (
		n       int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered questions",
		Long: `Print the most recent questions answered by ask, chat and serve, newest
first, with their outcome, latency and cited sources.

History lives in ~/.pdfqa/history.db unless PDFQA_HISTORY_DB says otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			hs, closeHistory := openHistory(log)
			defer closeHistory()
			if hs == nil {
				return fmt.Errorf("history: answer history is disabled or unavailable")
			}

			entries, err := hs.Recent(ctx, n)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No questions answered yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-9s %6s  %s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Outcome, e.Duration.Round(10*time.Millisecond), e.Question)
				if len(e.Sources) > 0 {
					fmt.Fprintf(out, "    sources: %s\n", strings.Join(e.Sources, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print entries as JSON")

	return cmd
}
