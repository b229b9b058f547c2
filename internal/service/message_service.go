package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/repository"
)

var (
	ErrEmptyMessage   = fmt.Errorf("%w: message content is required", domain.ErrInvalidArgument)
	ErrMessageTooLong = fmt.Errorf("%w: message content is too long", domain.ErrInvalidArgument)
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Notifier broadcasts persisted messages to live subscribers of a match.
type Notifier interface {
	Publish(ctx context.Context, matchID uuid.UUID, msg *domain.Message) error
}

type MessageService struct {
	messageRepo repository.MessageRepository
	chats       *ChatService
	notifier    Notifier
	maxBytes    int
}

func NewMessageService(messageRepo repository.MessageRepository, chats *ChatService, maxBytes int) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		chats:       chats,
		maxBytes:    maxBytes,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Send persists a message from userID and then broadcasts it. The broadcast
// is best effort: a notifier failure is logged and the persisted message is
// still returned.
func (s *MessageService) Send(ctx context.Context, userID, sessionID uuid.UUID, content, kind string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if s.maxBytes > 0 && len(content) > s.maxBytes {
		return nil, ErrMessageTooLong
	}
	k, err := domain.ParseMessageKind(kind)
	if err != nil {
		return nil, err
	}

	session, err := s.chats.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SessionID: sessionID,
		SenderID:  userID,
		Content:   content,
		Kind:      k,
	}
	if err := s.messageRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, session.MatchID, msg); err != nil {
			slog.Warn("broadcast failed, message is persisted", "message_id", msg.ID, "match_id", session.MatchID, "error", err)
		}
	}

	return msg, nil
}

// List returns up to limit messages after the cursor in (timestamp, id)
// order. NextCursor is set when more messages follow.
func (s *MessageService) List(ctx context.Context, userID, sessionID uuid.UUID, after *domain.Cursor, limit int) (*domain.MessagePage, error) {
	if _, err := s.chats.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	// Fetch limit+1 to know whether another page exists
	messages, err := s.messageRepo.ListSince(ctx, sessionID, after, limit+1)
	if err != nil {
		return nil, err
	}

	page := &domain.MessagePage{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		next := page.Messages[limit-1].Cursor()
		page.NextCursor = &next
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page, nil
}

// MarkRead flags every message from the other participant as read. It is
// safe to call repeatedly.
func (s *MessageService) MarkRead(ctx context.Context, userID, sessionID uuid.UUID) (int64, error) {
	if _, err := s.chats.GetSession(ctx, userID, sessionID); err != nil {
		return 0, err
	}
	n, err := s.messageRepo.MarkRead(ctx, sessionID, userID)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return n, nil
}
