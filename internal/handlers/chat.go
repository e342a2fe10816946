package handlers

import (
	"context"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tom-schwarz/APv3-frontend/internal/models"
	"github.com/tom-schwarz/APv3-frontend/internal/stream"
	"github.com/tmaxmax/go-sse"
)

type chat struct {
	ID    string
	Title string

	Active bool
}

type message struct {
	ID        string
	Role      string
	Content   template.HTML
	Timestamp time.Time
	Citations []models.Citation

	StreamingState string
}

// HandleChats processes research queries through HTTP POST requests, managing both new chat
// creation and message handling. It accepts the query through form data along with the agencies
// the retrieval should be scoped to, appends the user turn to the transcript, and starts the
// asynchronous stream that will produce the assistant turn.
//
// The handler expects "message" and at least one "agencies" form field, plus an optional
// "chat_id". Validation failures are reported before any network activity and leave the
// transcript untouched. For successful requests, it renders either a complete chatbox template
// for new chats or individual message templates for existing chats; incremental updates flow to
// the browser through Server-Sent Events.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
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

	agencies := r.Form["agencies"]
	if len(agencies) == 0 {
		m.logger.Error("No agencies selected")
		http.Error(w, "Select at least one agency", http.StatusBadRequest)
		return
	}

	m.handleSubmission(w, r, r.FormValue("chat_id"), msg,
		func(ctx context.Context, sessionID string) iter.Seq2[stream.Event, error] {
			return m.assistant.Query(ctx, msg, agencies, sessionID)
		})
}

// handleSubmission is the shared submission path for the research chat and diff chat flows. The
// two flows differ only in validation and in how the event stream is obtained; everything from
// transcript bookkeeping to rendering is identical.
func (m Main) handleSubmission(
	w http.ResponseWriter,
	r *http.Request,
	chatID string,
	msg string,
	events func(ctx context.Context, sessionID string) iter.Seq2[stream.Event, error],
) {
	var err error

	// We track if this is a new chat to determine the appropriate template rendering strategy
	isNewChat := false
	if chatID == "" {
		chatID, err = m.newChat()
		if err != nil {
			m.logger.Error("Failed to create new chat", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		isNewChat = true
	}

	// The user turn goes into the transcript immediately, before any network activity
	um := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   msg,
		Timestamp: time.Now(),
	}
	userMsgID, err := m.store.AddMessage(r.Context(), chatID, um)
	if err != nil {
		m.logger.Error("Failed to add user message",
			slog.String("message", fmt.Sprintf("%+v", um)),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	um.ID = userMsgID

	// The assistant turn is only appended once its stream finalizes; until then it exists solely
	// as an SSE topic the browser follows.
	aiMsgID := uuid.New().String()

	gen := m.generations.next(chatID)
	sessionID := fmt.Sprintf("session-%s", uuid.New().String())

	go m.streamAnswer(chatID, gen, aiMsgID, events(context.Background(), sessionID))

	if isNewChat {
		go m.generateChatTitle(chatID, msg)

		messages, err := m.store.Messages(r.Context(), chatID)
		if err != nil {
			m.logger.Error("Failed to get messages",
				slog.String("chatID", chatID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		msgs := make([]message, 0, len(messages)+1)
		for _, stored := range messages {
			mv, err := m.messageView(stored, models.StreamingStateEnded)
			if err != nil {
				m.logger.Error("Failed to render message",
					slog.String(errLoggerKey, err.Error()))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			msgs = append(msgs, mv)
		}
		msgs = append(msgs, message{
			ID:             aiMsgID,
			Role:           string(models.RoleAssistant),
			Timestamp:      time.Now(),
			StreamingState: models.StreamingStateLoading,
		})

		data := struct {
			CurrentChatID string
			Messages      []message
		}{
			CurrentChatID: chatID,
			Messages:      msgs,
		}
		if err := m.templates.ExecuteTemplate(w, "chatbox", data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	userView, err := m.messageView(um, models.StreamingStateEnded)
	if err != nil {
		m.logger.Error("Failed to render message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(w, "user_message", userView); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = m.templates.ExecuteTemplate(w, "ai_message", message{
		ID:             aiMsgID,
		Role:           string(models.RoleAssistant),
		Timestamp:      time.Now(),
		StreamingState: models.StreamingStateLoading,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// streamAnswer drives one stream session to completion: it folds classified events into the
// session, forwards incremental state to the browser, and appends the finished assistant turn to
// the transcript. A transport failure or explicit error frame surfaces as an error event and
// leaves the transcript untouched. When the stream closes without an explicit end frame, the
// session still finalizes with whatever text and citations were accumulated.
func (m Main) streamAnswer(chatID string, gen uint64, msgID string, events iter.Seq2[stream.Event, error]) {
	// Ensure SSE connection cleanup on function exit
	defer func() {
		e := &sse.Message{Type: sse.Type("closeMessage")}
		e.AppendData("bye")
		_ = m.sseSrv.Publish(e)
	}()

	sess := &stream.Session{}

	for ev, err := range events {
		// A newer submission for this chat supersedes us; stop touching shared state.
		if !m.generations.current(chatID, gen) {
			m.logger.Debug("Discarding stale stream", slog.String("chatID", chatID))
			return
		}

		if err != nil {
			m.logger.Error("Error from inference endpoint", slog.String(errLoggerKey, err.Error()))
			sess.Fail(err)
			m.publishError(msgID, err.Error())
			return
		}

		terminal := sess.Apply(ev)

		switch ev.Kind {
		case stream.KindCitations:
			m.publishCitations(msgID, sess.Citations())
		case stream.KindDelta:
			m.publishAnswer(msgID, sess.Answer())
		case stream.KindError:
			m.publishError(msgID, ev.Message)
			return
		case stream.KindEnd, stream.KindIgnorable:
		}

		if terminal {
			break
		}
	}

	if !m.generations.current(chatID, gen) {
		return
	}
	if !sess.Finalize() {
		return
	}

	am := models.Message{
		ID:        msgID,
		Role:      models.RoleAssistant,
		Content:   sess.Answer(),
		Citations: sess.Citations(),
		Timestamp: time.Now(),
	}
	if _, err := m.store.AddMessage(context.Background(), chatID, am); err != nil {
		m.logger.Error("Failed to add assistant message",
			slog.String("message", fmt.Sprintf("%+v", am)),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	m.publishAnswer(msgID, am.Content)
}

func (m Main) publishAnswer(msgID, answer string) {
	rendered, err := models.RenderMarkdown(answer)
	if err != nil {
		m.logger.Error("Failed to render answer",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: messagesSSEType}
	msg.AppendData(rendered)
	if err := m.sseSrv.Publish(&msg, messageIDTopic(msgID)); err != nil {
		m.logger.Error("Failed to publish answer",
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publishCitations(msgID string, citations []models.Citation) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "citation_list", citations); err != nil {
		m.logger.Error("Failed to render citations",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: citationsSSEType}
	msg.AppendData(sb.String())
	if err := m.sseSrv.Publish(&msg, messageIDTopic(msgID)); err != nil {
		m.logger.Error("Failed to publish citations",
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publishError(msgID, errMsg string) {
	msg := sse.Message{Type: errorSSEType}
	msg.AppendData(errMsg)
	if err := m.sseSrv.Publish(&msg, messageIDTopic(msgID)); err != nil {
		m.logger.Error("Failed to publish error",
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) messageView(msg models.Message, streamingState string) (message, error) {
	content := template.HTML(template.HTMLEscapeString(msg.Content))
	if msg.Role == models.RoleAssistant {
		rendered, err := models.RenderMarkdown(msg.Content)
		if err != nil {
			return message{}, fmt.Errorf("failed to render contents: %w", err)
		}
		content = template.HTML(rendered)
	}

	return message{
		ID:             msg.ID,
		Role:           string(msg.Role),
		Content:        content,
		Timestamp:      msg.Timestamp,
		Citations:      msg.Citations,
		StreamingState: streamingState,
	}, nil
}

func (m Main) newChat() (string, error) {
	newChat := models.Chat{
		ID: uuid.New().String(),
	}
	newChatID, err := m.store.AddChat(context.Background(), newChat)
	if err != nil {
		return "", fmt.Errorf("failed to add chat: %w", err)
	}
	newChat.ID = newChatID

	divs, err := m.chatDivs(newChat.ID)
	if err != nil {
		return "", fmt.Errorf("failed to create chat divs: %w", err)
	}

	msg := sse.Message{
		Type: chatsSSEType,
	}
	msg.AppendData(divs)

	if err := m.sseSrv.Publish(&msg, chatsSSETopic); err != nil {
		return "", fmt.Errorf("failed to publish chats: %w", err)
	}

	return newChat.ID, nil
}

func (m Main) generateChatTitle(chatID string, message string) {
	if m.titleGen == nil {
		return
	}

	title, err := m.titleGen.GenerateTitle(context.Background(), message)
	if err != nil {
		m.logger.Error("Error generating chat title",
			slog.String("message", message),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	updatedChat := models.Chat{
		ID:    chatID,
		Title: title,
	}
	if err := m.store.UpdateChat(context.Background(), updatedChat); err != nil {
		m.logger.Error("Failed to update chat title",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	divs, err := m.chatDivs(chatID)
	if err != nil {
		m.logger.Error("Failed to generate chat divs",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{
		Type: chatsSSEType,
	}
	msg.AppendData(divs)
	if err := m.sseSrv.Publish(&msg, chatsSSETopic); err != nil {
		m.logger.Error("Failed to publish chats",
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) chatDivs(activeID string) (string, error) {
	chats, err := m.store.Chats(context.Background())
	if err != nil {
		return "", fmt.Errorf("failed to get chats: %w", err)
	}

	var sb strings.Builder
	for _, ch := range chats {
		err := m.templates.ExecuteTemplate(&sb, "chat_title", chat{
			ID:     ch.ID,
			Title:  ch.Title,
			Active: ch.ID == activeID,
		})
		if err != nil {
			return "", fmt.Errorf("failed to execute chat_title template: %w", err)
		}
	}
	return sb.String(), nil
}
