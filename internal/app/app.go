package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"studylm/internal/chat"
	"studylm/internal/config"
	"studylm/internal/guide"
	"studylm/internal/inspect"
	"studylm/internal/progress"
	"studylm/internal/storage"
	"studylm/pkg/ai"
	"studylm/pkg/domain"
)

// FileGateway is the part of the AI backend the app needs for file
// registration.
type FileGateway interface {
	UploadFile(ctx context.Context, path, displayName string) (ai.FileRef, error)
	GetFile(ctx context.Context, id string) (ai.FileRef, error)
}

// Upload is one incoming study material file.
type Upload struct {
	Filename string
	Data     io.Reader
}

// Deps carries the collaborators App orchestrates.
type Deps struct {
	Config   config.Config
	Logger   *slog.Logger
	Gateway  FileGateway
	Guide    *guide.Generator
	Progress *progress.Tracker
	Files    *storage.FileStore
	URIs     *storage.URIStore
	Guides   *storage.GuideStore
	Chats    *chat.Store
	Jobs     *QuizJobs
}

// App ties the generators, stores and tracker together behind the
// operations the HTTP surface exposes.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	gateway  FileGateway
	guide    *guide.Generator
	progress *progress.Tracker
	files    *storage.FileStore
	uris     *storage.URIStore
	guides   *storage.GuideStore
	chats    *chat.Store
	jobs     *QuizJobs

	// baseCtx parents all background work so server shutdown can stop
	// in-flight generations.
	baseCtx context.Context
}

func New(ctx context.Context, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &App{
		cfg:      deps.Config,
		logger:   logger,
		gateway:  deps.Gateway,
		guide:    deps.Guide,
		progress: deps.Progress,
		files:    deps.Files,
		uris:     deps.URIs,
		guides:   deps.Guides,
		chats:    deps.Chats,
		jobs:     deps.Jobs,
		baseCtx:  ctx,
	}
}

// StartGeneration saves the uploaded files, registers a generation
// operation and runs the upload-and-generate pipeline in the
// background. It returns the operation id for progress polling.
func (a *App) StartGeneration(uploads []Upload) (string, error) {
	if len(uploads) == 0 {
		return "", fmt.Errorf("no files uploaded")
	}

	paths := make([]string, 0, len(uploads))
	for _, up := range uploads {
		path, err := a.files.Save(up.Filename, up.Data)
		if err != nil {
			return "", fmt.Errorf("save upload %q: %w", up.Filename, err)
		}
		info, err := inspect.Check(path)
		if err != nil {
			return "", fmt.Errorf("%q: %w", up.Filename, err)
		}
		a.logger.Info("saved upload", "file", up.Filename, "kind", info.Kind, "bytes", info.Bytes)
		paths = append(paths, path)
	}

	opID := uuid.NewString()
	a.progress.Init(opID)
	a.progress.Add(opID, fmt.Sprintf("Received %d files", len(paths)), progress.StatusInitializing, 0)

	go a.runGeneration(opID, paths)
	return opID, nil
}

func (a *App) runGeneration(opID string, paths []string) {
	ctx := a.baseCtx
	fail := func(err error) {
		a.logger.Error("study guide generation failed", "operation_id", opID, "error", err)
		a.progress.Add(opID, fmt.Sprintf("Error generating study guide: %v", err), progress.StatusError, -1)
	}

	// New materials replace the old set wholesale.
	if err := a.uris.Clear(); err != nil {
		fail(err)
		return
	}

	a.progress.Add(opID, "Uploading files to the AI backend...", progress.StatusUploading, 0)
	refs := make([]ai.FileRef, 0, len(paths))
	ids := make([]string, 0, len(paths))
	for _, path := range paths {
		ref, err := a.gateway.UploadFile(ctx, path, filepath.Base(path))
		if err != nil {
			fail(err)
			return
		}
		a.progress.Add(opID, fmt.Sprintf("Uploaded %s", ref.DisplayName), progress.StatusUploading, 0)
		refs = append(refs, ref)
		ids = append(ids, ref.ID())
	}
	if err := a.uris.Save(ids); err != nil {
		fail(err)
		return
	}

	// Existing conversations lost their grounding materials.
	a.chats.Clear()

	a.progress.Add(opID, "Generating study guide...", progress.StatusGenerating, 0)
	result, err := a.guide.Generate(ctx, refs, "", func(msg string, pct int) {
		a.progress.Add(opID, msg, progress.StatusGenerating, pct)
	})
	if err != nil {
		fail(err)
		return
	}
	if err := a.guides.Save(result); err != nil {
		fail(err)
		return
	}
	a.progress.Add(opID, "Study guide generated successfully", progress.StatusComplete, 100)
}

// GenerationStatus returns the progress snapshot for an operation.
func (a *App) GenerationStatus(opID string) (progress.State, error) {
	state, ok := a.progress.Get(opID)
	if !ok {
		return progress.State{}, ErrNotFound
	}
	return state, nil
}

// Guide returns the most recent study guide.
func (a *App) Guide() (domain.StudyGuide, error) {
	return a.guides.Load()
}

// LoadFileRefs re-resolves the stored file identifiers at the backend.
// ErrNoMaterials means nothing usable is uploaded.
func (a *App) LoadFileRefs(ctx context.Context) ([]ai.FileRef, error) {
	ids, err := a.uris.Load()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoMaterials
	}
	refs := make([]ai.FileRef, 0, len(ids))
	for _, id := range ids {
		ref, err := a.gateway.GetFile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve file %s: %w", id, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// SendChat validates that materials exist, then streams the model's
// answer into the chat's event queue from a background goroutine. The
// returned error covers only the synchronous part; streaming failures
// surface as error events on the queue.
func (a *App) SendChat(ctx context.Context, chatID, message, model string) error {
	refs, err := a.LoadFileRefs(ctx)
	if err != nil {
		return err
	}
	go func() {
		if err := a.chats.Send(a.baseCtx, chatID, message, model, refs); err != nil {
			a.logger.Error("chat turn failed", "chat_id", chatID, "error", err)
		}
	}()
	return nil
}

// ChatEvents exposes the chat's SSE event queue.
func (a *App) ChatEvents(chatID string) <-chan chat.Event {
	return a.chats.Queue(chatID)
}

// ResetChat discards the session so the next message starts fresh.
func (a *App) ResetChat(chatID string) {
	a.chats.Reset(chatID)
}

// StartQuiz resolves the materials and launches a quiz job.
func (a *App) StartQuiz(ctx context.Context, questionCount int, model string) (string, error) {
	refs, err := a.LoadFileRefs(ctx)
	if err != nil {
		return "", err
	}
	if questionCount < 1 {
		questionCount = 10
	}
	a.logger.Info("generating quiz", "question_count", questionCount, "model", model)
	return a.jobs.Start(a.baseCtx, refs, questionCount, model), nil
}

// QuizStatus returns the job snapshot or ErrNotFound.
func (a *App) QuizStatus(id string) (JobState, error) {
	return a.jobs.Status(id)
}

// CancelQuiz aborts a running quiz job.
func (a *App) CancelQuiz(id string) bool {
	return a.jobs.Cancel(id)
}
