package handlers

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tom-schwarz/APv3-frontend/internal/models"
	"github.com/tom-schwarz/APv3-frontend/internal/stream"
)

type historyPageData struct {
	DocumentID    string
	Agency        string
	DocumentTitle string
	CurrentChatID string
	Messages      []message
}

// HandleHistory renders the version history page for a single policy document: the version
// timeline, the AI-generated diff summary region, and the follow-up chat grounded in the
// diffed text.
func (m Main) HandleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")

	var msgs []message
	if chatID != "" {
		stored, err := m.store.Messages(r.Context(), chatID)
		if err != nil {
			m.logger.Error("Failed to get messages",
				slog.String("chatID", chatID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, sm := range stored {
			mv, err := m.messageView(sm, models.StreamingStateEnded)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			msgs = append(msgs, mv)
		}
	}

	data := historyPageData{
		DocumentID:    r.URL.Query().Get("doc"),
		Agency:        r.URL.Query().Get("agency"),
		DocumentTitle: r.URL.Query().Get("title"),
		CurrentChatID: chatID,
		Messages:      msgs,
	}

	if err := m.templates.ExecuteTemplate(w, "history.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleDiffChat processes follow-up questions about a document version comparison. It expects a
// "message" form field and a "version1" identifying the compared version; the remaining context
// fields (document title, agency, diffed text, prior summary) are forwarded verbatim so the
// inference service can ground its answer in the diff. The streaming pipeline is the same one the
// research chat uses, pointed at the diff-chat endpoint.
func (m Main) HandleDiffChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := strings.TrimSpace(r.FormValue("message"))
	if msg == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	if r.FormValue("version1") == "" {
		m.logger.Error("No version selected")
		http.Error(w, "Select a version", http.StatusBadRequest)
		return
	}

	docCtx := models.DocumentContext{
		DocumentTitle: r.FormValue("document_title"),
		Version1:      r.FormValue("version1"),
		Version2:      r.FormValue("version2"),
		Agency:        r.FormValue("agency"),
		VersionText:   r.FormValue("version_text"),
		SummaryText:   r.FormValue("summary_text"),
	}

	m.handleSubmission(w, r, r.FormValue("chat_id"), msg,
		func(ctx context.Context, sessionID string) iter.Seq2[stream.Event, error] {
			return m.assistant.DiffChat(ctx, msg, docCtx, sessionID)
		})
}
