package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xiaobo-yang/pdf-chat/internal/fsutil"
	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
)

func newHistoryCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage session history",
		Long: `View and manage the stored chat sessions.

` + history.ListAliases(),
	}

	cmd.AddCommand(newHistoryListCmd(deps))
	cmd.AddCommand(newHistoryShowCmd(deps))
	cmd.AddCommand(newHistoryExportCmd(deps))
	cmd.AddCommand(newHistorySearchCmd(deps))
	cmd.AddCommand(newHistoryDeleteCmd(deps))
	cmd.AddCommand(newHistoryClearCmd(deps))
	return cmd
}

func newHistoryListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			ids := app.Store.IDs()
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}

			current, _ := app.Store.Current()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tID\tTITLE\tMESSAGES\t")
			_, _ = fmt.Fprintln(w, "-\t--\t-----\t--------\t")
			for i, id := range ids {
				msgs, err := app.Store.Messages(id)
				if err != nil {
					return err
				}
				marker := ""
				if id == current {
					marker = "*"
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", i+1, id, history.Title(msgs), len(msgs), marker)
			}
			return w.Flush()
		},
	}
}

func newHistoryShowCmd(deps *Dependencies) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Show a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			id, err := history.NewResolver(app.Store).Resolve(args[0])
			if err != nil {
				return err
			}
			msgs, err := app.Store.Messages(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID: %s\n", id)
			fmt.Fprintf(out, "Title: %s\n", history.Title(msgs))
			fmt.Fprintf(out, "Messages: %d\n\n", len(msgs))

			for i, msg := range msgs {
				content := msg.Content
				if !full {
					content = truncate(content, 500)
				}
				fmt.Fprintf(out, "[%d] %s:\n  %s\n\n", i+1, roleLabel(msg.Role), content)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Do not truncate long messages")
	return cmd
}

func roleLabel(role models.Role) string {
	switch role {
	case models.RoleUser:
		return "You"
	case models.RoleAssistant:
		return "Assistant"
	}
	return "System"
}

func newHistoryExportCmd(deps *Dependencies) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <ref>",
		Short: "Export a session as markdown, JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			exportFormat, err := history.ParseExportFormat(format)
			if err != nil {
				return err
			}
			id, err := history.NewResolver(app.Store).Resolve(args[0])
			if err != nil {
				return err
			}
			data, err := app.Store.Export(id, exportFormat)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := fsutil.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", id, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "Export format: markdown, json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newHistorySearchCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search message content across sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			results := app.Store.Search(args[0])
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No matches.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tMESSAGE\tMATCH")
			for _, r := range results {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", r.SessionID, r.MatchIndex+1, r.MatchSnippet)
			}
			return w.Flush()
		},
	}
}

func newHistoryDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			id, err := history.NewResolver(app.Store).Resolve(args[0])
			if err != nil {
				return err
			}
			if err := app.Store.Delete(id); err != nil {
				return err
			}
			if err := app.Save(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session: %s\n", id)
			return nil
		},
	}
}

func newHistoryClearCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			app.Store.Clear()
			if err := app.Save(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "All sessions deleted.")
			return nil
		},
	}
}
