package graph

import (
	"context"

	"github.com/enterprise-data-agent/server/internal/agent/model"
)

const (
	// StreamChunkSize is the number of characters per streamed content event.
	StreamChunkSize = 50
	// NoResponseText is streamed when the workflow produced no text.
	NoResponseText = "No response generated"
)

// Stream runs the workflow and emits the answer in fixed-size chunks followed
// by a final event carrying the thread id. The channel is always closed.
func (r *graphRunner) Stream(ctx context.Context, in model.ChatInput) <-chan model.StreamEvent {
	return streamResponse(ctx, func(ctx context.Context) (*model.ChatResponse, error) {
		return r.Invoke(ctx, in)
	})
}

func streamResponse(ctx context.Context, invoke func(context.Context) (*model.ChatResponse, error)) <-chan model.StreamEvent {
	events := make(chan model.StreamEvent)
	go func() {
		defer close(events)

		send := func(ev model.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resp, err := invoke(ctx)
		if err != nil {
			send(model.StreamEvent{Error: err.Error(), Done: true})
			return
		}

		text := ""
		threadID := ""
		if resp != nil {
			text, threadID = resp.Text, resp.ThreadID
		}
		if text == "" {
			text = NoResponseText
		}

		for _, chunk := range Chunk(text, StreamChunkSize) {
			if !send(model.StreamEvent{Content: chunk}) {
				return
			}
		}
		send(model.StreamEvent{Done: true, ThreadID: threadID})
	}()
	return events
}

// Chunk splits text into pieces of at most size runes.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = StreamChunkSize
	}
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
