package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfqa/internal/logging"
	"github.com/54b3r/pdfqa/internal/tracing"
	"github.com/54b3r/pdfqa/internal/tui"
)

// NewChatCmd constructs the `pdfqa chat` command, an interactive terminal
// form for asking questions one after another.
func NewChatCmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions in an interactive terminal form",
		Long: `Open a full-screen form with a question box and an answer pane.

Keys:
  enter    ask the question
  ctrl+r   clear the question and the answer
  esc      quit

Logs are discarded while the form is open unless --log-file is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var w io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("chat: open log file: %w", err)
				}
				defer f.Close()
				w = f
			}
			log := logging.NewWithWriter(w)
			ctx = logging.WithLogger(ctx, log)

			if flush, ok := tracing.Install(); ok {
				defer flush()
			}

			stack, err := buildQueryStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer stack.Close()

			title := fmt.Sprintf("%s · %s (%s)", stack.prompt.Name(), stack.prompt.Corpus(), stack.index.name)
			return tui.Run(ctx, stack.answer, title)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Append logs to this file while the form is open")

	return cmd
}
