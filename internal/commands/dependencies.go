package commands

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/xiaobo-yang/pdf-chat/internal/agent"
	"github.com/xiaobo-yang/pdf-chat/internal/config"
	"github.com/xiaobo-yang/pdf-chat/internal/dispatch"
	"github.com/xiaobo-yang/pdf-chat/internal/files"
	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
	"github.com/xiaobo-yang/pdf-chat/internal/ollama"
	"github.com/xiaobo-yang/pdf-chat/internal/tui"
)

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	RunChat(submitter tui.Submitter, cfg tui.Config) (string, error)
	RunSessionSelector(store tui.SessionLister, backend models.Backend) (tui.SessionSelectorResult, error)
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

func (d *DefaultTUI) RunChat(submitter tui.Submitter, cfg tui.Config) (string, error) {
	return tui.RunChat(submitter, cfg)
}

func (d *DefaultTUI) RunSessionSelector(store tui.SessionLister, backend models.Backend) (tui.SessionSelectorResult, error) {
	return tui.RunSessionSelector(store, backend)
}

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// LoadConfig returns the active configuration.
	LoadConfig func() (config.Config, error)

	// TUI is the terminal user interface.
	TUI TUIInterface

	// CopyToClipboard writes reply text to the system clipboard.
	CopyToClipboard func(string) error

	// LogOutput receives structured logs. Defaults to stderr.
	LogOutput io.Writer

	// Extra options for the backend clients, used by tests to swap transports.
	LocalOptions  []ollama.ClientOption
	RemoteOptions []agent.Option

	// Verbose forces debug logging regardless of the config.
	Verbose bool

	once sync.Once
	app  *App
	err  error
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		LoadConfig:      config.LoadConfig,
		TUI:             &DefaultTUI{},
		CopyToClipboard: clipboard.WriteAll,
		LogOutput:       os.Stderr,
	}
}

// App is the wired application: stores, backends and the dispatcher.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Store       *history.Store
	HistoryPath string
	Files       *files.Registry
	Local       *ollama.Client
	Remote      *agent.Agent
	Dispatcher  *dispatch.Dispatcher
}

// App builds the application on first use
func (d *Dependencies) App() (*App, error) {
	d.once.Do(func() {
		d.app, d.err = d.build()
	})
	return d.app, d.err
}

func (d *Dependencies) build() (*App, error) {
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(d.LogOutput, cfg.Verbose || d.Verbose)

	historyPath, err := config.GetHistoryPath(cfg)
	if err != nil {
		return nil, err
	}
	store := history.NewStore()
	if err := store.LoadFile(historyPath); err != nil {
		return nil, err
	}

	uploadDir, err := config.GetUploadDir(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := files.NewRegistry(uploadDir, files.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	localOpts := []ollama.ClientOption{
		ollama.WithLogger(logger),
		ollama.WithTimeoutSeconds(ollama.TransportTimeoutSeconds(cfg.RequestTimeout)),
	}
	local, err := ollama.NewClient(cfg.OllamaURL, append(localOpts, d.LocalOptions...)...)
	if err != nil {
		return nil, err
	}

	remote := agent.New(agent.Config{
		APIKey:       cfg.RemoteAPIKey,
		BaseURL:      cfg.RemoteBaseURL,
		Model:        cfg.RemoteModel,
		TopP:         cfg.TopP,
		SystemPrompt: cfg.SystemPrompt,
	}, append([]agent.Option{agent.WithLogger(logger)}, d.RemoteOptions...)...)

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithTimeout(cfg.Timeout()),
		dispatch.WithLocalModel(cfg.LocalModel),
		dispatch.WithFiles(registry),
	}
	if cfg.AutoSave {
		dispatchOpts = append(dispatchOpts, dispatch.WithSaver(history.FileSaver{Store: store, Path: historyPath}))
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		HistoryPath: historyPath,
		Files:       registry,
		Local:       local,
		Remote:      remote,
		Dispatcher:  dispatch.New(store, local, remote, dispatchOpts...),
	}, nil
}

// Save persists the session store
func (a *App) Save() error {
	return a.Store.SaveFile(a.HistoryPath)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
