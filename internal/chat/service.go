package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zento-ai/zento-server/internal/common"
	"github.com/zento-ai/zento-server/internal/gemini"
)

// ErrNoUserMessage is returned by Regenerate when the chat holds no user
// message to regenerate from.
var ErrNoUserMessage = errors.New("chat: no user message to regenerate")

// StreamEvent is one event of a streaming exchange. Exactly one field is
// set: Delta for an incremental text chunk, Done for the persisted assistant
// message on success, Err on failure. A cancelled stream ends the channel
// without a terminal event.
type StreamEvent struct {
	Delta string
	Done  *Message
	Err   error
}

// Service is the conversation orchestrator: it owns chat/message CRUD, the
// send and regenerate flows, and the registry of in-flight streams. At most
// one stream is active per chat; starting a new one cancels the previous.
type Service struct {
	repo  *Repo
	model *gemini.Client
	log   *zap.Logger

	mu     sync.Mutex
	active map[string]*stream
}

type stream struct {
	cancel context.CancelFunc
}

func NewService(repo *Repo, model *gemini.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		model:  model,
		log:    log,
		active: make(map[string]*stream),
	}
}

func (s *Service) CreateChat(ctx context.Context, userID, title string) (*Chat, error) {
	if title == "" {
		title = DefaultTitle
	}
	chatID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	c := &Chat{ChatID: chatID, UserID: userID, Title: title}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	return s.repo.ListChatsByUser(ctx, userID)
}

// ownedChat loads the chat and hides it behind ErrRecordNotFound when it
// belongs to someone else.
func (s *Service) ownedChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	c, err := s.repo.GetChatByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

// GetChat returns the chat when it exists and belongs to the user.
func (s *Service) GetChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	return s.ownedChat(ctx, userID, chatID)
}

func (s *Service) RenameChat(ctx context.Context, userID, chatID, title string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.repo.UpdateChatTitle(ctx, chatID, title)
}

func (s *Service) DeleteChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	s.CancelStream(chatID)
	return s.repo.DeleteChat(ctx, chatID)
}

func (s *Service) ListMessages(ctx context.Context, userID, chatID string) ([]Message, error) {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID)
}

func (s *Service) DeleteMessage(ctx context.Context, userID, chatID string, messageID uint64) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.repo.DeleteMessage(ctx, chatID, messageID)
}

// deriveTitle takes the first five whitespace-separated words of the first
// user message as the chat title.
func deriveTitle(content string) string {
	words := strings.Fields(content)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

// Send runs one streaming exchange: persist the user message, format the
// full history, stream the reply, persist the assistant message on
// completion. When chatID is empty a new chat is created first and returned.
//
// The user message is persisted before the stream starts and is never rolled
// back; a transport error leaves the conversation one user message longer.
func (s *Service) Send(ctx context.Context, userID, chatID, content, imageData string) (*Chat, <-chan StreamEvent, error) {
	var c *Chat
	var err error
	if chatID == "" {
		c, err = s.CreateChat(ctx, userID, "")
	} else {
		c, err = s.ownedChat(ctx, userID, chatID)
	}
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.repo.CountMessages(ctx, c.ChatID)
	if err != nil {
		return nil, nil, err
	}

	userMsg := &Message{
		ChatID:    c.ChatID,
		UserID:    userID,
		Role:      RoleUser,
		Content:   content,
		ImageData: imageData,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, nil, err
	}

	if existing == 0 {
		title := deriveTitle(content)
		if title != "" {
			if err := s.repo.UpdateChatTitle(ctx, c.ChatID, title); err != nil {
				// Not fatal to the exchange; the stream proceeds with the
				// default title.
				s.log.Warn("title update failed",
					zap.String("chat_id", c.ChatID), zap.Error(err))
			} else {
				c.Title = title
			}
		}
	}

	history, err := s.repo.ListMessages(ctx, c.ChatID)
	if err != nil {
		return nil, nil, err
	}

	return c, s.streamReply(ctx, c, history), nil
}

// Regenerate truncates the conversation at its most recent user message,
// discards the superseded assistant replies from storage, and streams a
// replacement.
func (s *Service) Regenerate(ctx context.Context, userID, chatID string) (<-chan StreamEvent, error) {
	c, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	lastUser := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			lastUser = i
			break
		}
	}
	if lastUser == -1 {
		return nil, ErrNoUserMessage
	}

	kept := history[:lastUser+1]
	if err := s.repo.DeleteMessagesAfter(ctx, chatID, kept[lastUser].ID); err != nil {
		return nil, err
	}

	return s.streamReply(ctx, c, kept), nil
}

// streamReply drives one exchange against the model. It registers the
// stream, cancelling any prior in-flight stream for the chat, and emits
// events in arrival order. Cancellation ends the stream silently.
func (s *Service) streamReply(ctx context.Context, c *Chat, history []Message) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)

	streamCtx, cancel := context.WithCancel(ctx)
	st := &stream{cancel: cancel}
	s.beginStream(c.ChatID, st)

	turns := make([]gemini.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, gemini.Turn{
			Role:      m.Role,
			Content:   m.Content,
			ImageData: m.ImageData,
		})
	}
	contents := gemini.FormatTurns(turns)

	go func() {
		defer close(events)
		defer s.endStream(c.ChatID, st)
		defer cancel()

		chunks, errs := s.model.StreamGenerate(streamCtx, contents)

		var acc strings.Builder
		for delta := range chunks {
			acc.WriteString(delta)
			// Once cancelled, drain without emitting; a buffered delta must
			// not reach the consumer after the cancel.
			if streamCtx.Err() != nil {
				continue
			}
			select {
			case events <- StreamEvent{Delta: delta}:
			case <-streamCtx.Done():
			}
		}

		if err := <-errs; err != nil {
			s.log.Warn("stream failed",
				zap.String("chat_id", c.ChatID), zap.Error(err))
			s.emitTerminal(streamCtx, events, StreamEvent{Err: err})
			return
		}
		if streamCtx.Err() != nil {
			// Cancelled: no terminal event, the partial reply is discarded.
			return
		}

		assistantMsg := &Message{
			ChatID:  c.ChatID,
			UserID:  c.UserID,
			Role:    RoleAssistant,
			Content: acc.String(),
		}
		if err := s.repo.InsertMessage(streamCtx, assistantMsg); err != nil {
			s.log.Error("persist assistant message failed",
				zap.String("chat_id", c.ChatID), zap.Error(err))
			s.emitTerminal(streamCtx, events, StreamEvent{Err: err})
			return
		}
		if err := s.repo.TouchChat(streamCtx, c.ChatID); err != nil {
			s.log.Warn("touch chat failed",
				zap.String("chat_id", c.ChatID), zap.Error(err))
		}

		s.emitTerminal(streamCtx, events, StreamEvent{Done: assistantMsg})
	}()

	return events
}

func (s *Service) emitTerminal(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func (s *Service) beginStream(chatID string, st *stream) {
	s.mu.Lock()
	prev := s.active[chatID]
	s.active[chatID] = st
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
}

func (s *Service) endStream(chatID string, st *stream) {
	s.mu.Lock()
	if s.active[chatID] == st {
		delete(s.active, chatID)
	}
	s.mu.Unlock()
}

// CancelStream aborts the chat's in-flight stream, if any. Per the
// cancellation contract no further events are delivered.
func (s *Service) CancelStream(chatID string) {
	s.mu.Lock()
	st := s.active[chatID]
	s.mu.Unlock()

	if st != nil {
		st.cancel()
	}
}

// InsertUserMessage persists a user message without starting a stream; the
// async job pipeline pairs it with a queued generation.
func (s *Service) InsertUserMessage(ctx context.Context, userID, chatID, content, imageData string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.repo.InsertMessage(ctx, &Message{
		ChatID:    chatID,
		UserID:    userID,
		Role:      RoleUser,
		Content:   content,
		ImageData: imageData,
	})
}

// GenerateAssistantReply produces and persists an assistant reply from the
// chat's current history without relaying deltas. Used by the worker.
func (s *Service) GenerateAssistantReply(ctx context.Context, userID, chatID string) (string, uint64, error) {
	c, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return "", 0, err
	}

	history, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return "", 0, err
	}

	turns := make([]gemini.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, gemini.Turn{
			Role:      m.Role,
			Content:   m.Content,
			ImageData: m.ImageData,
		})
	}

	reply, err := s.model.Generate(ctx, gemini.FormatTurns(turns))
	if err != nil {
		return "", 0, err
	}

	assistantMsg := &Message{
		ChatID:  chatID,
		UserID:  c.UserID,
		Role:    RoleAssistant,
		Content: reply,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return "", 0, err
	}
	if err := s.repo.TouchChat(ctx, chatID); err != nil {
		s.log.Warn("touch chat failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	return reply, assistantMsg.ID, nil
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}
