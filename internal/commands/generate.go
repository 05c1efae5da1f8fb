package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/ollama"
)

// newGenerateCmd sends a raw completion to the local backend. It bypasses
// sessions entirely; nothing is recorded.
func newGenerateCmd(deps *Dependencies) *cobra.Command {
	var (
		modelFlag  string
		fileFlag   string
		streamFlag bool
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Run a raw completion on the local model without a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, ok, err := readInput(cmd, args, fileFlag)
			if err != nil {
				return err
			}
			prompt = strings.TrimSpace(prompt)
			if !ok || prompt == "" {
				return apierrors.NewInputError("prompt", "cannot be empty")
			}

			app, err := deps.App()
			if err != nil {
				return err
			}
			if modelFlag == "" {
				modelFlag = app.Config.LocalModel
			}

			ctx := cmd.Context()
			if timeout := app.Config.Timeout(); timeout > 0 {
				var cancel func()
				ctx, cancel = contextWithTimeout(ctx, timeout)
				defer cancel()
			}

			reply, err := app.Local.Generate(ctx, modelFlag, prompt, streamFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var onChunk func(ollama.Chunk)
			if streamFlag {
				onChunk = func(c ollama.Chunk) { fmt.Fprint(out, c.Text) }
			}
			text, err := reply.Collect(onChunk)
			if err != nil {
				return err
			}
			if !streamFlag {
				fmt.Fprint(out, text)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Local model name (default from config)")
	cmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read prompt from file")
	cmd.Flags().BoolVar(&streamFlag, "stream", false, "Print the completion as it arrives")
	return cmd
}
