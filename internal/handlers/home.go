package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/tom-schwarz/APv3-frontend/internal/models"
)

type agencyView struct {
	Name      string
	Documents []models.Document
}

type homePageData struct {
	Chats         []chat
	CurrentChatID string
	Messages      []message

	Agencies []agencyView

	SelectedDocument string
	SelectedAgency   string
	InitialPage      string
}

// HandleHome renders the main research page: the agency/document sidebar, the transcript of the
// selected chat, and the inline PDF viewer for the selected document. Query parameters select the
// active chat ("chat_id") and the document to display ("doc", "agency", "page").
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")

	chats, err := m.store.Chats(r.Context())
	if err != nil {
		m.logger.Error("Failed to get chats", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	chatViews := make([]chat, len(chats))
	for i, ch := range chats {
		chatViews[i] = chat{
			ID:     ch.ID,
			Title:  ch.Title,
			Active: ch.ID == chatID,
		}
	}

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

	// The tree is best-effort: the page still renders when the document service is down.
	var agencies []agencyView
	tree, err := m.documents.Tree(r.Context())
	if err != nil {
		m.logger.Error("Failed to fetch document tree", slog.String(errLoggerKey, err.Error()))
	} else {
		names := make([]string, 0, len(tree.Agencies))
		for name := range tree.Agencies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			agencies = append(agencies, agencyView{
				Name:      name,
				Documents: tree.Agencies[name].Documents,
			})
		}
	}

	data := homePageData{
		Chats:            chatViews,
		CurrentChatID:    chatID,
		Messages:         msgs,
		Agencies:         agencies,
		SelectedDocument: r.URL.Query().Get("doc"),
		SelectedAgency:   r.URL.Query().Get("agency"),
		InitialPage:      r.URL.Query().Get("page"),
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
