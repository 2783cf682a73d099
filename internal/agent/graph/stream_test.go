package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/enterprise-data-agent/server/internal/agent/model"
)

func collect(ch <-chan model.StreamEvent) []model.StreamEvent {
	var out []model.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestStreamChunksAndDone(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	text := strings.Repeat("a", 120)
	events := collect(streamResponse(context.Background(), func(context.Context) (*model.ChatResponse, error) {
		return &model.ChatResponse{Text: text, ThreadID: "thread_1"}, nil
	}))

	require.Len(t, events, 4)
	assert.Len(t, events[0].Content, 50)
	assert.Len(t, events[1].Content, 50)
	assert.Len(t, events[2].Content, 20)
	assert.False(t, events[2].Done)
	assert.Equal(t, model.StreamEvent{Done: true, ThreadID: "thread_1"}, events[3])
}

func TestStreamEmptyText(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	events := collect(streamResponse(context.Background(), func(context.Context) (*model.ChatResponse, error) {
		return &model.ChatResponse{ThreadID: "thread_1"}, nil
	}))
	require.Len(t, events, 2)
	assert.Equal(t, NoResponseText, events[0].Content)
	assert.True(t, events[1].Done)
}

func TestStreamError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	events := collect(streamResponse(context.Background(), func(context.Context) (*model.ChatResponse, error) {
		return nil, errors.New("boom")
	}))
	require.Len(t, events, 1)
	assert.Equal(t, "boom", events[0].Error)
	assert.True(t, events[0].Done)
}

func TestStreamStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	ch := streamResponse(ctx, func(context.Context) (*model.ChatResponse, error) {
		return &model.ChatResponse{Text: strings.Repeat("b", 500)}, nil
	})
	<-ch
	cancel()
	// drain: the producer must close the channel after cancellation
	for range ch {
	}
}

func TestChunkRunes(t *testing.T) {
	assert.Equal(t, []string{"ab", "cd", "e"}, Chunk("abcde", 2))
	assert.Equal(t, []string{"ไท", "ย"}, Chunk("ไทย", 2))
	assert.Empty(t, Chunk("", 3))
}
