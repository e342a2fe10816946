package handlers

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	askpolicy "github.com/tom-schwarz/APv3-frontend"
	"github.com/tom-schwarz/APv3-frontend/internal/models"
	"github.com/tom-schwarz/APv3-frontend/internal/stream"
	"github.com/tmaxmax/go-sse"
)

// StreamClient issues queries against the remote inference endpoints and yields the classified
// event sequence of each response. Query scopes retrieval to the given agencies; DiffChat grounds
// the exchange in a document version comparison instead.
type StreamClient interface {
	Query(ctx context.Context, query string, agencies []string, sessionID string) iter.Seq2[stream.Event, error]
	DiffChat(ctx context.Context, message string, docCtx models.DocumentContext, sessionID string) iter.Seq2[stream.Event, error]
}

// TranscriptStore defines the interface for chat transcript persistence. The transcript is
// append-only: there is no way to modify a stored message, only to append new ones. UpdateChat
// exists solely for attaching generated titles.
type TranscriptStore interface {
	Chats(ctx context.Context) ([]models.Chat, error)
	AddChat(ctx context.Context, chat models.Chat) (string, error)
	UpdateChat(ctx context.Context, chat models.Chat) error

	Messages(ctx context.Context, chatID string) ([]models.Message, error)
	AddMessage(ctx context.Context, chatID string, message models.Message) (string, error)
}

// DocumentProvider serves the agency-grouped document tree and raw document bytes for the
// inline PDF viewer.
type DocumentProvider interface {
	Tree(ctx context.Context) (models.DocumentTree, error)
	Open(ctx context.Context, documentID string) (io.ReadCloser, string, error)
}

// TitleGenerator produces a short conversation title from the opening message.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, message string) (string, error)
}

// Main handles the core functionality of the research assistant, managing server-sent events,
// HTML templates, and the interactions between the inference client, document service, and
// transcript store.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	assistant StreamClient
	documents DocumentProvider
	store     TranscriptStore
	titleGen  TitleGenerator

	generations *generations

	logger *slog.Logger
}

const (
	chatsSSETopic = "chats"

	errLoggerKey = "err"
)

// SSE event types for real-time updates.
var (
	chatsSSEType     = sse.Type("chats")
	messagesSSEType  = sse.Type("messages")
	citationsSSEType = sse.Type("citations")
	errorSSEType     = sse.Type("error")
)

// NewMain creates a new Main instance with the provided collaborators. It initializes the SSE
// server and parses the HTML templates from the embedded filesystem. The SSE server is configured
// to handle both default events and chat-specific topics.
func NewMain(
	assistant StreamClient,
	documents DocumentProvider,
	store TranscriptStore,
	titleGen TitleGenerator,
	logger *slog.Logger,
) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		askpolicy.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				// We start with default topics that all clients should subscribe to
				topics := []string{sse.DefaultTopic, chatsSSETopic}

				// We create a message-specific topic if the client requests updates for a particular message
				messageID := s.Req.URL.Query().Get("message_id")
				if messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates:   tmpl,
		assistant:   assistant,
		documents:   documents,
		store:       store,
		titleGen:    titleGen,
		generations: newGenerations(),
		logger:      logger.With(slog.String("module", "handlers")),
	}, nil
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// HandleSSE serves the server-sent events endpoint the browser subscribes to for chat list and
// message updates.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to
// all connected clients and waits up to 5 seconds for connections to terminate. After the timeout,
// any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// generations tracks, per chat, the latest stream generation. A new submission bumps the counter;
// a stream goroutine that observes a newer generation stops mutating shared state, so a stale
// stream can never overwrite the effects of the query that superseded it.
type generations struct {
	mu sync.Mutex
	m  map[string]uint64
}

func newGenerations() *generations {
	return &generations{m: make(map[string]uint64)}
}

func (g *generations) next(chatID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.m[chatID]++
	return g.m[chatID]
}

func (g *generations) current(chatID string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m[chatID] == gen
}
