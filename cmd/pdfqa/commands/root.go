// Package commands defines all Cobra CLI commands for the pdfqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfqa/internal/audit"
	"github.com/54b3r/pdfqa/internal/config"
	"github.com/54b3r/pdfqa/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdfqa",
		Short: "Ask questions about a folder of PDFs",
		Long: `pdfqa indexes a directory of PDF documents into a vector store and
answers questions about them with a language model, citing the source file
and page of every passage it used.

Typical flow:
  pdfqa index --dir ./docs
  pdfqa ask "what does the warranty cover?"
  pdfqa chat

Model and embedding providers are selected with MODEL_PROVIDER and
EMBEDDING_PROVIDER, or a YAML config file (~/.pdfqa/config.yaml).
A .env file in the working directory is loaded as well.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load .env and YAML config (env vars always override file values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pdfqa/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewAskCmd(),
		NewChatCmd(),
		NewServeCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
