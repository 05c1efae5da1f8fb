package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newFilesCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage reference documents",
		Long: `Upload PDF documents and choose which of them are sent as context
to the remote backend.`,
	}

	cmd.AddCommand(newFilesUploadCmd(deps))
	cmd.AddCommand(newFilesListCmd(deps))
	cmd.AddCommand(newFilesActivateCmd(deps))
	cmd.AddCommand(newFilesDeactivateCmd(deps))
	cmd.AddCommand(newFilesDeleteCmd(deps))
	return cmd
}

func newFilesUploadCmd(deps *Dependencies) *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload PDF documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", path, err)
				}
				ref, err := app.Files.Upload(filepath.Base(path), f)
				f.Close()
				if err != nil {
					return err
				}

				status := "uploaded"
				if activate {
					if _, err := app.Files.Activate(ref.Path); err != nil {
						return err
					}
					status = "uploaded and activated"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", status, ref.Name, formatSize(ref.Size))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&activate, "activate", "a", false, "Activate the files after upload")
	return cmd
}

func newFilesListCmd(deps *Dependencies) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			refs, err := app.Files.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(refs) == 0 {
				fmt.Fprintln(out, "No files uploaded.")
				return nil
			}
			if activeOnly {
				shown := refs[:0]
				for _, ref := range refs {
					if ref.Active {
						shown = append(shown, ref)
					}
				}
				if len(shown) == 0 {
					fmt.Fprintln(out, "No active files.")
					return nil
				}
				refs = shown
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tSIZE\tACTIVE")
			_, _ = fmt.Fprintln(w, "----\t----\t------")
			for _, ref := range refs {
				active := ""
				if ref.Active {
					active = "yes"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", ref.Name, formatSize(ref.Size), active)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only show active files")
	return cmd
}

func newFilesActivateCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <name>...",
		Short: "Send documents as context with remote turns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}
			for _, ref := range args {
				path, err := app.Files.Activate(ref)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", filepath.Base(path))
			}
			return nil
		},
	}
}

func newFilesDeactivateCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <name>...",
		Short: "Stop sending documents as context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}
			for _, ref := range args {
				path, err := app.Files.Deactivate(ref)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", filepath.Base(path))
			}
			return nil
		},
	}
}

func newFilesDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>...",
		Short: "Deactivate and remove documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}
			for _, ref := range args {
				result, err := app.Files.Delete(ref)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", filepath.Base(result.Path), result.Note())
			}
			return nil
		},
	}
}

// formatSize renders a byte count for listings
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
