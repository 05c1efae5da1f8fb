package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
	"github.com/xiaobo-yang/pdf-chat/internal/render"
	"github.com/xiaobo-yang/pdf-chat/internal/tui"
)

func newChatCmd(deps *Dependencies) *cobra.Command {
	var (
		backendFlag string
		sessionFlag string
		modeFlag    string
		selectFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

The chat keeps the session transcript as context for every turn.
Use /backend, /mode and /new inside the chat to switch settings.
Type 'exit', 'quit', or press Ctrl+C to end the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.App()
			if err != nil {
				return err
			}

			if backendFlag == "" {
				backendFlag = app.Config.DefaultBackend
			}
			backend, err := models.ParseBackend(backendFlag)
			if err != nil {
				return err
			}
			kind, err := models.ParseRequestKind(modeFlag)
			if err != nil {
				return err
			}

			var sessionID string
			if selectFlag {
				result, err := deps.TUI.RunSessionSelector(app.Store, backend)
				if err != nil {
					return err
				}
				if !result.Confirmed {
					return nil
				}
				sessionID = result.SessionID
				if result.IsNew {
					sessionID = history.NewSessionID()
				}
			} else {
				sessionID, err = resolveSession(app.Store, sessionFlag)
				if err != nil {
					return err
				}
			}

			msgs, err := app.Store.Messages(sessionID)
			if err != nil && !errors.Is(err, apierrors.ErrSessionNotFound) {
				return err
			}

			modelName := app.Config.LocalModel
			if backend == models.BackendRemote {
				modelName = app.Remote.Model()
			}

			lastSession, err := deps.TUI.RunChat(app.Dispatcher, tui.Config{
				SessionID: sessionID,
				Backend:   backend,
				Kind:      kind,
				ModelName: modelName,
				History:   msgs,
				Render:    render.OptionsFromConfig(app.Config.Markdown, 0),
			})
			if err != nil {
				return err
			}

			if !app.Config.AutoSave {
				if err := app.Save(); err != nil {
					return err
				}
			}
			if lastSession != "" && app.Store.Exists(lastSession) {
				fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("Session: "+lastSession))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&backendFlag, "backend", "b", "", "Backend to use: local or remote (default from config)")
	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Session id, @current, @last, @new or list index")
	cmd.Flags().StringVar(&modeFlag, "mode", "chat", "Initial request mode: chat, translate or analyze")
	cmd.Flags().BoolVar(&selectFlag, "select", false, "Pick the session from a list")
	return cmd
}
