package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"studylm/pkg/ai"
)

// systemPrompt steers every chat session toward the uploaded materials.
const systemPrompt = `You are a helpful study assistant.
Provide clear and concise explanations.
Use markdown formatting for better readability.
Use **bold** for important terms, *italics* for emphasis, and lists when appropriate.
Format code with ` + "```language code blocks```" + ` when relevant.
Use examples and analogies when helpful.
Focus on answering questions about the content of the uploaded study materials.`

// queueSize bounds each chat's event buffer. A stalled or vanished SSE
// reader drops events instead of wedging the worker.
const queueSize = 256

// Event is one server-sent payload. Exactly one of the groups is set:
// a connection notice, a streamed chunk with the text so far, an error,
// or the final done marker carrying the complete response.
type Event struct {
	Connection   string `json:"connection,omitempty"`
	Chunk        string `json:"chunk,omitempty"`
	FullResponse string `json:"full_response,omitempty"`
	Error        string `json:"error,omitempty"`
	Done         bool   `json:"done,omitempty"`
}

// Handle is one live conversation with a generative model.
type Handle interface {
	Send(ctx context.Context, parts []ai.Part) (string, error)
	SendStream(ctx context.Context, parts []ai.Part, fn func(chunk string) error) (string, error)
}

// Backend creates conversations. *ai.Client satisfies it through an
// adapter at the wiring layer.
type Backend interface {
	NewChat(model, systemInstruction string) Handle
}

type session struct {
	mu           sync.Mutex
	handle       Handle
	model        string
	firstMessage bool
	// userTurns records committed user messages so a model switch can
	// replay the conversation into a fresh session.
	userTurns []string
}

// Store owns all live chat sessions and their event queues, keyed by
// the chat id cookie.
type Store struct {
	mu           sync.Mutex
	backend      Backend
	defaultModel string
	logger       *slog.Logger
	sessions     map[string]*session
	queues       map[string]chan Event
}

func NewStore(backend Backend, defaultModel string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:      backend,
		defaultModel: defaultModel,
		logger:       logger,
		sessions:     make(map[string]*session),
		queues:       make(map[string]chan Event),
	}
}

// Queue returns the event channel for a chat, creating it on first use.
func (s *Store) Queue(chatID string) <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue(chatID)
}

func (s *Store) queue(chatID string) chan Event {
	q, ok := s.queues[chatID]
	if !ok {
		q = make(chan Event, queueSize)
		s.queues[chatID] = q
	}
	return q
}

// Reset discards the chat session so the next message starts fresh.
// The event queue survives so an open SSE connection keeps working.
func (s *Store) Reset(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}

// Clear drops every session and queue. Called when new study materials
// replace the old ones and existing conversations lose their context.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*session)
	s.queues = make(map[string]chan Event)
}

// Send runs one chat turn: it resolves the session (creating it, or
// rebuilding it when the requested model differs from the session's),
// streams the model's answer into the chat's event queue chunk by
// chunk, and finishes with a done event carrying the full response.
// Errors are both pushed to the queue and returned.
func (s *Store) Send(ctx context.Context, chatID, message, model string, files []ai.FileRef) error {
	if model == "" {
		model = s.defaultModel
	}

	s.mu.Lock()
	q := s.queue(chatID)
	drain(q)
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &session{
			handle:       s.backend.NewChat(model, systemPrompt),
			model:        model,
			firstMessage: true,
		}
		s.sessions[chatID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.model != model {
		if err := s.switchModel(ctx, sess, model, files); err != nil {
			s.fail(q, err)
			return err
		}
	}

	parts := []ai.Part{{Text: message}}
	if sess.firstMessage {
		parts = ai.WithFiles(files, message)
	}

	var full strings.Builder
	_, err := sess.handle.SendStream(ctx, parts, func(chunk string) error {
		full.WriteString(chunk)
		s.push(q, Event{Chunk: chunk, FullResponse: full.String()})
		return nil
	})
	if err != nil {
		s.fail(q, err)
		return err
	}

	sess.firstMessage = false
	sess.userTurns = append(sess.userTurns, message)
	s.push(q, Event{Done: true, FullResponse: full.String()})
	return nil
}

// switchModel rebuilds the session on a new model and replays the
// recorded conversation into it, attaching the study materials to the
// first replayed turn exactly as the original first message did.
func (s *Store) switchModel(ctx context.Context, sess *session, model string, files []ai.FileRef) error {
	s.logger.Debug("chat model changed, replaying history", "from", sess.model, "to", model)
	handle := s.backend.NewChat(model, systemPrompt)
	for i, turn := range sess.userTurns {
		parts := []ai.Part{{Text: turn}}
		if i == 0 {
			parts = ai.WithFiles(files, turn)
		}
		if _, err := handle.Send(ctx, parts); err != nil {
			return err
		}
	}
	sess.handle = handle
	sess.model = model
	sess.firstMessage = len(sess.userTurns) == 0
	return nil
}

func (s *Store) push(q chan Event, ev Event) {
	select {
	case q <- ev:
	default:
		s.logger.Warn("chat event queue full, dropping event")
	}
}

func (s *Store) fail(q chan Event, err error) {
	s.push(q, Event{Error: err.Error()})
	s.push(q, Event{Done: true})
}

func drain(q chan Event) {
	for {
		select {
		case <-q:
		default:
			return
		}
	}
}
