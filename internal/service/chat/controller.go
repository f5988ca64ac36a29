package chat

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"vibesession/internal/domain/models"
	"vibesession/internal/taskq"
)

// Backend is the slice of the chat service the controller schedules work
// against. All calls run on queue workers, never on the control path.
type Backend interface {
	LoadHistory(ctx context.Context, userName, chatID string) ([]ClientMessage, error)
	ListSessions(ctx context.Context, userName string) ([]models.SessionSummary, error)
	SaveMessage(ctx context.Context, userName, chatID string, role models.MessageRole, content string, order int) error
	GenerateReply(ctx context.Context, userName string, history []ClientMessage) (string, error)
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	FastInterval   time.Duration // poll interval while work is outstanding
	SlowInterval   time.Duration // poll interval when idle
	SimulateStream bool          // reveal single-shot responses incrementally
	Logger         *slog.Logger
}

// Controller drives the chat UI's render loop. User actions submit background
// work to the task queue and return an optimistic snapshot immediately; Tick
// merges completed work from the poll stores into the snapshot and chooses
// the next poll interval.
//
// The controller itself is stateless between calls: the snapshot travels with
// the client, the queue holds all cross-tick state.
type Controller struct {
	queue          *taskq.Queue
	backend        Backend
	fast           time.Duration
	slow           time.Duration
	simulateStream bool
	logger         *slog.Logger
}

// NewController creates a controller.
func NewController(queue *taskq.Queue, backend Backend, opts ControllerOptions) *Controller {
	fast := opts.FastInterval
	if fast <= 0 {
		fast = 150 * time.Millisecond
	}
	slow := opts.SlowInterval
	if slow <= 0 {
		slow = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		queue:          queue,
		backend:        backend,
		fast:           fast,
		slow:           slow,
		simulateStream: opts.SimulateStream,
		logger:         logger,
	}
}

// SendMessage appends an optimistic user message and assistant placeholder to
// the snapshot, queues the user-message save and the generation, and returns
// the new snapshot without waiting on either.
func (c *Controller) SendMessage(state ClientChatState, text, userName string) ClientChatState {
	chatID := state.CurrentChatID

	messages := cloneMessages(state.Messages)
	nextOrder := maxOrder(messages) + 1

	userMsg := ClientMessage{
		ID:      taskq.NewMessageID(),
		Role:    string(models.RoleUser),
		Content: text,
		Order:   nextOrder,
		Saving:  true,
	}
	messages = append(messages, userMsg)

	assistantMsg := ClientMessage{
		ID:    taskq.NewMessageID(),
		Role:  string(models.RoleAssistant),
		Order: nextOrder + 1,
	}
	messages = append(messages, assistantMsg)

	c.queue.SubmitSave(userMsg.ID, func(ctx context.Context) error {
		return c.backend.SaveMessage(ctx, userName, chatID, models.RoleUser, text, nextOrder)
	})
	c.logger.Debug("queued user message save", "message_id", userMsg.ID, "order", nextOrder)

	// Generation context is the transcript including the new user message,
	// in order; the placeholder's empty content is dropped downstream.
	history := cloneMessages(messages)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Order < history[j].Order })

	c.queue.SubmitGeneration(assistantMsg.ID, func(ctx context.Context) (string, error) {
		return c.backend.GenerateReply(ctx, userName, history)
	}, c.simulateStream)
	c.logger.Debug("queued generation", "message_id", assistantMsg.ID)

	return ClientChatState{CurrentChatID: chatID, Messages: messages}
}

// SelectChat queues a history load for the chat and returns a loading
// snapshot; the transcript arrives on a later tick.
func (c *Controller) SelectChat(chatID, userName string) ClientChatState {
	c.queue.SubmitHistoryLoad(chatID, func(ctx context.Context) (any, error) {
		return c.backend.LoadHistory(ctx, userName, chatID)
	})
	c.logger.Debug("queued history load", "chat_id", chatID)

	return ClientChatState{CurrentChatID: chatID, Messages: []ClientMessage{}, IsLoading: true}
}

// RefreshSessions queues a sessions-list load under the reserved key.
func (c *Controller) RefreshSessions(userName string) {
	c.queue.SubmitHistoryLoad(taskq.SessionsKey, func(ctx context.Context) (any, error) {
		return c.backend.ListSessions(ctx, userName)
	})
}

// Tick merges completed background work into the snapshot and computes the
// next poll interval: fast while any generation, save, or history load is
// outstanding, slow when idle. The merge is idempotent; absence of a result
// in any store means "not yet ready", never an error.
func (c *Controller) Tick(state ClientChatState, toasts []ErrorToast, sessions []models.SessionSummary, userName string) TickResult {
	res := TickResult{State: state, Toasts: toasts, Sessions: sessions}

	// Sessions-list completion is merged whether or not a chat is selected.
	var loadedSessions []models.SessionSummary
	if payload, ok := c.queue.PopHistoryResult(taskq.SessionsKey); ok {
		if ls, ok := payload.([]models.SessionSummary); ok {
			loadedSessions = ls
		}
	}
	if loadedSessions != nil {
		res.Sessions = mergeSessions(loadedSessions, sessions)
		res.SessionsChanged = true
	}

	if state.CurrentChatID == "" {
		return c.finish(res, false, false, false)
	}

	messages := cloneMessages(state.Messages)
	changed := false
	activeGeneration := false
	pendingSave := false
	isLoading := state.IsLoading

	// Completed history load replaces the transcript wholesale. Buffers for
	// optimistic messages the authoritative reload dropped are released so
	// the store doesn't accumulate orphans. A failed load keeps the current
	// transcript but clears the loading flag so the client isn't pinned at
	// the fast interval waiting for a result that will never come.
	if payload, ok := c.queue.PopHistoryResult(state.CurrentChatID); ok {
		switch loaded := payload.(type) {
		case []ClientMessage:
			kept := make(map[string]struct{}, len(loaded))
			for _, m := range loaded {
				kept[m.ID] = struct{}{}
			}
			for _, m := range messages {
				if _, ok := kept[m.ID]; !ok {
					c.queue.ReleaseBuffer(m.ID)
				}
			}
			messages = loaded
			isLoading = false
			changed = true
			c.logger.Debug("merged history", "chat_id", state.CurrentChatID, "messages", len(messages))
		case taskq.LoadFailure:
			if isLoading {
				isLoading = false
				changed = true
			}
			res.Toasts = append(res.Toasts, ErrorToast{Stage: "load", Error: loaded.Err})
		}
	}

	// Grow assistant contents from generation buffers; results are keyed by
	// message id, so a buffer for a message no longer in this snapshot is
	// simply never consulted (stale-result discard).
	for i := range messages {
		m := &messages[i]
		if m.Role != string(models.RoleAssistant) {
			continue
		}
		buf := c.queue.Buffer(m.ID)
		if buf == nil {
			continue
		}

		text, done, errMsg := buf.Snapshot()
		if !done {
			activeGeneration = true
		}
		if text != m.Content {
			m.Content = text
			changed = true
		}
		if !done {
			continue
		}
		if errMsg != "" && m.Error == "" {
			m.Error = errMsg
			changed = true
		}
		// Generation finished cleanly: queue the save exactly once.
		if errMsg == "" && m.Content != "" && !m.Saved && !m.Saving {
			chatID := state.CurrentChatID
			content := m.Content
			order := m.Order
			c.queue.SubmitSave(m.ID, func(ctx context.Context) error {
				return c.backend.SaveMessage(ctx, userName, chatID, models.RoleAssistant, content, order)
			})
			c.logger.Debug("queued assistant message save", "message_id", m.ID)
			m.Saving = true
			changed = true
		}
	}

	// Consume save statuses (pop-once).
	for i := range messages {
		m := &messages[i]
		status := c.queue.PopSaveStatus(m.ID)
		if status == nil {
			if m.Saving && !m.Saved {
				pendingSave = true
			}
			continue
		}
		if status.OK {
			m.Saved = true
			m.Saving = false
			m.Error = ""
			c.queue.ReleaseBuffer(m.ID)
		} else {
			m.Saved = false
			m.Saving = false
			m.Error = status.Error
			if m.Error == "" {
				m.Error = "failed to save"
			}
			res.Toasts = append(res.Toasts, ErrorToast{MessageID: m.ID, Stage: "save", Error: m.Error})
		}
		changed = true
	}

	res.State = ClientChatState{
		CurrentChatID: state.CurrentChatID,
		Messages:      messages,
		IsLoading:     isLoading,
	}
	res.Changed = changed

	return c.finish(res, activeGeneration, pendingSave, isLoading)
}

// finish stamps the adaptive interval onto the result.
func (c *Controller) finish(res TickResult, activeGeneration, pendingSave, isLoading bool) TickResult {
	interval := c.slow
	if activeGeneration || pendingSave || isLoading {
		interval = c.fast
	}
	res.NextInterval = interval
	res.NextIntervalMS = interval.Milliseconds()
	return res
}

// ResetIfCurrent clears the snapshot when the deleted chat is the one on
// screen; other deletions leave it untouched. Buffers held by the cleared
// transcript are released.
func (c *Controller) ResetIfCurrent(state ClientChatState, deletedChatID string) ClientChatState {
	if state.CurrentChatID != deletedChatID {
		return state
	}
	for _, m := range state.Messages {
		c.queue.ReleaseBuffer(m.ID)
	}
	return ClientChatState{Messages: []ClientMessage{}}
}

// OptimisticSessions prepends a just-created session so it shows up before
// the next background refresh lands.
func OptimisticSessions(sessions []models.SessionSummary, sessionID string) []models.SessionSummary {
	out := make([]models.SessionSummary, 0, len(sessions)+1)
	out = append(out, models.SessionSummary{ID: sessionID, Title: "", UpdatedAt: time.Now()})
	out = append(out, sessions...)
	return out
}

// mergeSessions reconciles a freshly loaded sessions list (authoritative,
// order preserved) with the client's local list: a local title wins over an
// empty server title, and locally created sessions the server doesn't know
// yet are kept at the end.
func mergeSessions(loaded, existing []models.SessionSummary) []models.SessionSummary {
	existingByID := make(map[string]models.SessionSummary, len(existing))
	for _, s := range existing {
		if s.ID != "" {
			existingByID[s.ID] = s
		}
	}
	loadedIDs := make(map[string]struct{}, len(loaded))

	merged := make([]models.SessionSummary, 0, len(loaded))
	for _, s := range loaded {
		loadedIDs[s.ID] = struct{}{}
		if local, ok := existingByID[s.ID]; ok && s.Title == "" && local.Title != "" {
			s.Title = local.Title
		}
		merged = append(merged, s)
	}
	for _, s := range existing {
		if _, ok := loadedIDs[s.ID]; !ok && s.ID != "" {
			merged = append(merged, s)
		}
	}
	return merged
}

func cloneMessages(messages []ClientMessage) []ClientMessage {
	out := make([]ClientMessage, len(messages))
	copy(out, messages)
	return out
}
