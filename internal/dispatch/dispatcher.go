// Package dispatch routes user turns to the selected backend and records
// them in the session store.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
	"github.com/xiaobo-yang/pdf-chat/internal/history"
	"github.com/xiaobo-yang/pdf-chat/internal/models"
	"github.com/xiaobo-yang/pdf-chat/internal/ollama"
)

// LocalBackend is the local model server
type LocalBackend interface {
	Chat(ctx context.Context, model, prompt string, stream bool) (*ollama.Reply, error)
}

// RemoteBackend is the remote agent service. Run returns msgs followed by
// the messages it produced.
type RemoteBackend interface {
	Run(ctx context.Context, msgs []models.Message, files []string) ([]models.Message, error)
}

// FileSource lists the reference files to attach to remote turns
type FileSource interface {
	ListActive() []string
}

// Saver persists the session store after a successful turn
type Saver interface {
	Save() error
}

// State is a step of the per-turn state machine
type State string

const (
	StateIdle            State = "idle"
	StateSessionResolved State = "session_resolved"
	StatePromptBuilt     State = "prompt_built"
	StateBackendInvoked  State = "backend_invoked"
	StateReplyAppended   State = "reply_appended"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Turn is one user request
type Turn struct {
	SessionID string
	Text      string
	Backend   string
	Kind      models.RequestKind
}

// Reply is the outcome of a successful turn
type Reply struct {
	SessionID string
	Backend   models.Backend
	Kind      models.RequestKind
	// Prompt is the user message content as sent and recorded
	Prompt string
	Text   string
	// SaveErr is set when autosave failed. The turn is still recorded in memory.
	SaveErr error
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTimeout bounds every backend call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithLocalModel sets the model name sent to the local backend
func WithLocalModel(model string) Option {
	return func(d *Dispatcher) {
		d.localModel = model
	}
}

// WithFiles attaches the active reference files to remote turns
func WithFiles(files FileSource) Option {
	return func(d *Dispatcher) {
		d.files = files
	}
}

// WithSaver enables autosave after every successful turn
func WithSaver(saver Saver) Option {
	return func(d *Dispatcher) {
		d.saver = saver
	}
}

// Dispatcher runs turns against the session store and the two backends
type Dispatcher struct {
	store  *history.Store
	local  LocalBackend
	remote RemoteBackend

	files      FileSource
	saver      Saver
	localModel string
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a Dispatcher. Either backend may be nil; turns addressed to a
// missing backend fail with BackendUnavailable.
func New(store *history.Store, local LocalBackend, remote RemoteBackend, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		local:      local,
		remote:     remote,
		localModel: models.DefaultLocalModel,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store returns the session store
func (d *Dispatcher) Store() *history.Store {
	return d.store
}

// SubmitTurn runs one turn and returns the full reply
func (d *Dispatcher) SubmitTurn(ctx context.Context, turn Turn) (*Reply, error) {
	return d.submit(ctx, turn, false, nil)
}

// SubmitTurnStream runs one turn, passing reply text to onChunk as it
// arrives. Local replies stream chunk by chunk; remote replies arrive as a
// single chunk. The session is only updated once the whole reply is in.
func (d *Dispatcher) SubmitTurnStream(ctx context.Context, turn Turn, onChunk func(string)) (*Reply, error) {
	return d.submit(ctx, turn, true, onChunk)
}

// ErrorResponse converts any turn error into its structured form
func ErrorResponse(err error) *apierrors.Response {
	return apierrors.ToResponse(err)
}

func (d *Dispatcher) submit(ctx context.Context, turn Turn, stream bool, onChunk func(string)) (reply *Reply, err error) {
	sessionID := strings.TrimSpace(turn.SessionID)
	state := StateIdle

	defer func() {
		if err != nil {
			d.logger.DebugContext(ctx, "turn failed",
				"session", sessionID, "state", state, "next", StateFailed, "kind", apierrors.KindOf(err))
		}
	}()

	if strings.TrimSpace(turn.Text) == "" {
		return nil, apierrors.NewInputError("text", "cannot be empty")
	}
	if sessionID == "" {
		return nil, apierrors.NewInputError("session_id", "cannot be empty")
	}
	backend, err := models.ParseBackend(turn.Backend)
	if err != nil {
		return nil, err
	}
	kind, err := models.ParseRequestKind(string(turn.Kind))
	if err != nil {
		return nil, err
	}

	unlock := d.store.Lock(sessionID)
	defer unlock()

	session, err := d.store.GetOrCreate(sessionID)
	if err != nil {
		return nil, err
	}
	state = d.transition(ctx, sessionID, state, StateSessionResolved)

	prompt := BuildPrompt(kind, turn.Text)
	userMsg := models.UserMessage(prompt)
	transcript := append(session.Messages, userMsg)
	state = d.transition(ctx, sessionID, state, StatePromptBuilt)

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var replies []models.Message
	switch backend {
	case models.BackendLocal:
		replies, err = d.invokeLocal(callCtx, transcript, stream, onChunk)
	case models.BackendRemote:
		replies, err = d.invokeRemote(callCtx, transcript, onChunk)
	}
	if err == nil {
		err = callCtx.Err()
	}
	if err != nil {
		return nil, d.classify(ctx, backend, err)
	}
	state = d.transition(ctx, sessionID, state, StateBackendInvoked)

	if err := d.store.Append(sessionID, append([]models.Message{userMsg}, replies...)...); err != nil {
		return nil, err
	}
	if err := d.store.SetCurrent(sessionID); err != nil {
		return nil, err
	}
	state = d.transition(ctx, sessionID, state, StateReplyAppended)

	reply = &Reply{
		SessionID: sessionID,
		Backend:   backend,
		Kind:      kind,
		Prompt:    prompt,
		Text:      replies[len(replies)-1].Content,
	}

	if d.saver != nil {
		if saveErr := d.saver.Save(); saveErr != nil {
			reply.SaveErr = saveErr
			d.logger.WarnContext(ctx, "autosave failed", "session", sessionID, "error", saveErr)
		}
	}

	d.transition(ctx, sessionID, state, StateDone)
	return reply, nil
}

func (d *Dispatcher) transition(ctx context.Context, sessionID string, from, to State) State {
	d.logger.DebugContext(ctx, "turn state", "session", sessionID, "from", from, "to", to)
	return to
}

func (d *Dispatcher) invokeLocal(ctx context.Context, transcript []models.Message, stream bool, onChunk func(string)) ([]models.Message, error) {
	if d.local == nil {
		return nil, apierrors.NewBackendError(string(models.BackendLocal), "", "local backend not configured")
	}

	reply, err := d.local.Chat(ctx, d.localModel, models.FlattenTranscript(transcript), stream)
	if err != nil {
		return nil, err
	}

	var emit func(ollama.Chunk)
	if onChunk != nil {
		emit = func(c ollama.Chunk) { onChunk(c.Text) }
	}
	text, err := reply.Collect(emit)
	if err != nil {
		return nil, err
	}
	return []models.Message{models.AssistantMessage(text)}, nil
}

func (d *Dispatcher) invokeRemote(ctx context.Context, transcript []models.Message, onChunk func(string)) ([]models.Message, error) {
	if d.remote == nil {
		return nil, apierrors.NewBackendError(string(models.BackendRemote), "", "remote backend not configured")
	}

	var files []string
	if d.files != nil {
		files = d.files.ListActive()
	}

	out, err := d.remote.Run(ctx, transcript, files)
	if err != nil {
		return nil, err
	}
	if len(out) <= len(transcript) {
		return nil, apierrors.NewBackendError(string(models.BackendRemote), "", "no reply produced")
	}

	replies := models.CloneMessages(out[len(transcript):])
	if replies[len(replies)-1].Role != models.RoleAssistant {
		return nil, apierrors.NewBackendError(string(models.BackendRemote), "", "reply is not an assistant message")
	}
	if onChunk != nil {
		onChunk(replies[len(replies)-1].Content)
	}
	return replies, nil
}

// classify turns a context error left unclassified by a backend into the
// error taxonomy. Caller cancellation is returned as is.
func (d *Dispatcher) classify(ctx context.Context, backend models.Backend, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	if errors.Is(err, apierrors.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.NewTimeoutError(string(backend), "", err)
	}
	return err
}
