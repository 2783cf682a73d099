package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

const defaultMaxTurns = 10

// MessagesManager assembles model context from the thread history and records
// the turns of each run.
type MessagesManager struct {
	threads  model.ThreadRepository
	maxTurns int
}

func NewMessagesManager(threads model.ThreadRepository, config model.ThreadConfig) *MessagesManager {
	maxTurns := config.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &MessagesManager{
		threads:  threads,
		maxTurns: maxTurns,
	}
}

// EnsureThread returns threadID after checking it exists, or creates a new
// thread carrying userID and title when threadID is empty.
func (cm *MessagesManager) EnsureThread(ctx context.Context, threadID, userID, title string) (string, bool, error) {
	if threadID != "" {
		if _, err := cm.threads.Get(ctx, threadID); err != nil {
			return "", false, err
		}
		return threadID, false, nil
	}

	meta := map[string]string{}
	if userID != "" {
		meta[model.MetaUserID] = userID
	}
	if title = strings.TrimSpace(title); title != "" {
		meta[model.MetaTitle] = title
	}
	t, err := cm.threads.Create(ctx, meta)
	if err != nil {
		return "", false, err
	}
	logx.Debug().Str("thread_id", t.ID).Str("user_id", userID).Msg("Created thread")
	return t.ID, true, nil
}

func (cm *MessagesManager) SaveUser(ctx context.Context, threadID, content string) error {
	_, err := cm.threads.AddMessage(ctx, threadID, schema.User, content)
	return err
}

func (cm *MessagesManager) SaveAssistant(ctx context.Context, threadID, content string) error {
	_, err := cm.threads.AddMessage(ctx, threadID, schema.Assistant, content)
	return err
}

// BuildQueryContext returns the query agent input: system prompt, recent turns
// and the question. The question is not repeated when it is already the last
// stored turn.
func (cm *MessagesManager) BuildQueryContext(ctx context.Context, threadID, systemPrompt, question string) ([]*schema.Message, error) {
	history, err := cm.history(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if n := len(history); n > 0 && history[n-1].Role == schema.User && history[n-1].Content == question {
		history = history[:n-1]
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(question))
	return messages, nil
}

// BuildRenderContext returns the render agent input: system prompt, recent
// turns and the render request.
func (cm *MessagesManager) BuildRenderContext(ctx context.Context, threadID, systemPrompt, request string) ([]*schema.Message, error) {
	history, err := cm.history(ctx, threadID)
	if err != nil {
		return nil, err
	}
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(request))
	return messages, nil
}

func (cm *MessagesManager) history(ctx context.Context, threadID string) ([]*schema.Message, error) {
	if threadID == "" {
		return nil, nil
	}
	stored, err := cm.threads.LoadMessages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread history: %w", err)
	}
	messages := make([]*schema.Message, 0, len(stored))
	for _, m := range stored {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case schema.User:
			messages = append(messages, schema.UserMessage(m.Content))
		case schema.Assistant:
			messages = append(messages, schema.AssistantMessage(m.Content, nil))
		}
	}
	return trimTail(messages, cm.maxTurns), nil
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
