// Package commands provides CLI commands for pdfchat.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

var (
	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// NewRootCmd builds the command tree around deps
func NewRootCmd(deps *Dependencies) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "pdfchat [text]",
		Short: "Chat with your PDFs through a local or remote model",
		Long: `pdfchat forwards text to a locally hosted model server (Ollama) or to a
remote agent service, optionally with uploaded PDF documents as context,
and keeps per-session transcripts on disk.

Examples:
  pdfchat chat                          Start interactive chat
  pdfchat "What is attention?"          Send a single message
  pdfchat -b remote -s paper "Summarize the method"
  pdfchat translate "Attention is all you need"
  pdfchat files upload paper.pdf --activate
  pdfchat -f question.md                Read text from file
  cat notes.md | pdfchat analyze        Read text from stdin`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(cmd.OutOrStdout(), "pdfchat %s (built %s)\n", Version, BuildTime)
				return nil
			}

			text, ok, err := readInput(cmd, args, opts.file)
			if err != nil {
				return err
			}
			if !ok {
				return cmd.Help()
			}

			kind, err := models.ParseRequestKind(opts.mode)
			if err != nil {
				return err
			}
			return runQuery(cmd, deps, opts, kind, text)
		},
	}

	cmd.PersistentFlags().BoolVar(&deps.Verbose, "verbose", false, "Enable debug logging")
	addQueryFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.mode, "mode", "chat", "Request mode: chat, translate or analyze")
	cmd.Flags().BoolP("version", "v", false, "Show version and exit")

	cmd.AddCommand(newChatCmd(deps))
	cmd.AddCommand(newModeCmd(deps, models.KindTranslate, "Translate text into Chinese"))
	cmd.AddCommand(newModeCmd(deps, models.KindAnalyze, "Explain the content, key concepts and main points of text"))
	cmd.AddCommand(newGenerateCmd(deps))
	cmd.AddCommand(newStatusCmd(deps))
	cmd.AddCommand(newFilesCmd(deps))
	cmd.AddCommand(newHistoryCmd(deps))
	cmd.AddCommand(newConfigCmd(deps))

	return cmd
}

// rootCmd is the production command tree
var rootCmd = NewRootCmd(NewDependencies())

// Execute runs the root command. An interrupt cancels the turn in flight.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, formatErrorMessage(err))
		os.Exit(1)
	}
}

// readInput returns the text of a turn from --file, stdin or the first
// argument, in that order. ok is false when none was given.
func readInput(cmd *cobra.Command, args []string, file string) (string, bool, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", false, fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), true, nil
	}

	if len(args) > 0 {
		return args[0], true, nil
	}

	in := cmd.InOrStdin()
	if f, isFile := in.(*os.File); isFile {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", false, nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", false, fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}
