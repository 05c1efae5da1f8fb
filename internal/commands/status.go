package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newStatusCmd reports backend reachability and store sizes
func newStatusCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			ctx, cancel := contextWithTimeout(cmd.Context(), statusTimeout)
			defer cancel()

			local := "unreachable"
			if version, err := app.Local.Version(ctx); err == nil {
				local = "ok (ollama " + version + ")"
			} else {
				app.Logger.Debug("local backend check failed", "error", err)
			}

			remote := "API key not configured"
			if app.Config.RemoteAPIKey != "" {
				remote = "configured"
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "Local backend:\t%s\t%s (%s)\n", app.Local.BaseURL(), local, app.Config.LocalModel)
			_, _ = fmt.Fprintf(w, "Remote backend:\t%s\t%s (%s)\n", app.Config.RemoteBaseURL, remote, app.Remote.Model())
			_, _ = fmt.Fprintf(w, "Default backend:\t%s\n", app.Config.DefaultBackend)
			_, _ = fmt.Fprintf(w, "Sessions:\t%d\t%s\n", app.Store.Len(), app.HistoryPath)
			_, _ = fmt.Fprintf(w, "Active files:\t%d\t%s\n", len(app.Files.ListActive()), app.Files.Dir())
			return w.Flush()
		},
	}
}
