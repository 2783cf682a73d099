package threads

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	errx "github.com/enterprise-data-agent/server/internal/core/error"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

const (
	// ListLimit bounds the number of threads returned by List.
	ListLimit = 100
	// DefaultTitle is used when a thread has no title and no user message.
	DefaultTitle = "New Chat"

	titleMaxRunes = 50
)

// Summary describes a thread for listing.
type Summary struct {
	ThreadID  string    `json:"thread_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a thread message as shown to the user.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Update carries the optional fields of a thread update.
type Update struct {
	Title  *string `json:"title,omitempty"`
	Status *string `json:"status,omitempty"`
}

// Service manages the threads of a user. Every operation on a single thread
// checks that the thread belongs to the caller.
type Service struct {
	repo model.ThreadRepository
}

func NewService(repo model.ThreadRepository) *Service {
	return &Service{repo: repo}
}

// List returns up to ListLimit of the user's threads, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Summary, error) {
	if userID == "" {
		return nil, errx.Unauthorized(errx.ErrAuthRequired)
	}
	threads, err := s.repo.ListByUser(ctx, userID, ListLimit)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("Error listing threads")
		return nil, err
	}
	out := make([]Summary, 0, len(threads))
	for _, t := range threads {
		if t.Metadata[model.MetaUserID] != userID {
			continue
		}
		out = append(out, s.summarize(ctx, t))
	}
	return out, nil
}

// Get returns one thread of the user.
func (s *Service) Get(ctx context.Context, userID, threadID string) (*Summary, error) {
	t, err := s.owned(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	sum := s.summarize(ctx, t)
	return &sum, nil
}

// Update sets the title and/or status of a thread.
func (s *Service) Update(ctx context.Context, userID, threadID string, upd Update) error {
	if _, err := s.owned(ctx, userID, threadID); err != nil {
		return err
	}
	fields := map[string]string{}
	if upd.Title != nil {
		fields[model.MetaTitle] = strings.TrimSpace(*upd.Title)
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		if status != model.ThreadStatusRegular && status != model.ThreadStatusArchived {
			return errx.BadRequest(errx.ErrInvalidStatus)
		}
		fields[model.MetaStatus] = status
	}
	if len(fields) == 0 {
		return nil
	}
	if err := s.repo.UpdateMetadata(ctx, threadID, fields); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Error updating thread")
		return err
	}
	return nil
}

// Delete removes a thread of the user.
func (s *Service) Delete(ctx context.Context, userID, threadID string) error {
	if _, err := s.owned(ctx, userID, threadID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, threadID); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Error deleting thread")
		return err
	}
	return nil
}

// Messages returns the non-blank messages of a thread in chronological order.
// Of repeats with the same role and content only the newest is kept.
func (s *Service) Messages(ctx context.Context, userID, threadID string) ([]Message, error) {
	if _, err := s.owned(ctx, userID, threadID); err != nil {
		return nil, err
	}
	stored, err := s.repo.LoadMessages(ctx, threadID)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Error loading messages")
		return nil, err
	}

	type key struct{ role, content string }
	seen := make(map[key]bool, len(stored))
	out := make([]Message, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		m := stored[i]
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		k := key{string(m.Role), m.Content}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Message{ID: m.ID, Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Service) owned(ctx context.Context, userID, threadID string) (*model.Thread, error) {
	if userID == "" {
		return nil, errx.Unauthorized(errx.ErrAuthRequired)
	}
	t, err := s.repo.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if t.Metadata[model.MetaUserID] != userID {
		logx.Warn().Str("thread_id", threadID).Str("user_id", userID).Msg("Thread access denied")
		return nil, errx.Forbidden(errx.ErrAccessDenied)
	}
	return t, nil
}

func (s *Service) summarize(ctx context.Context, t *model.Thread) Summary {
	status := t.Metadata[model.MetaStatus]
	if status == "" {
		status = model.ThreadStatusRegular
	}
	return Summary{
		ThreadID:  t.ID,
		Title:     s.title(ctx, t),
		Status:    status,
		CreatedAt: t.CreatedAt,
	}
}

// title is the metadata title, else the first user message truncated to 50
// characters, else DefaultTitle.
func (s *Service) title(ctx context.Context, t *model.Thread) string {
	if title := t.Metadata[model.MetaTitle]; title != "" {
		return title
	}
	msgs, err := s.repo.LoadMessages(ctx, t.ID)
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", t.ID).Msg("Could not load messages for title")
		return DefaultTitle
	}
	for _, m := range msgs {
		if m.Role != schema.User || strings.TrimSpace(m.Content) == "" {
			continue
		}
		return TruncateTitle(m.Content)
	}
	return DefaultTitle
}

// TruncateTitle shortens text to 50 characters followed by "..." when longer.
func TruncateTitle(text string) string {
	r := []rune(text)
	if len(r) <= titleMaxRunes {
		return text
	}
	return string(r[:titleMaxRunes]) + "..."
}
