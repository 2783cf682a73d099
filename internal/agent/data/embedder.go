package data

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"
)

// Task types understood by the Gemini embedding endpoint.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// GeminiEmbedder implements the eino embedding.Embedder on the genai client.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int32
	taskType   string
}

func NewGeminiEmbedder(client *genai.Client, modelName string, dimensions int32) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: modelName, dimensions: dimensions, taskType: TaskRetrievalQuery}
}

// ForDocuments returns a copy that embeds with the document task type, used when
// loading cached queries.
func (e *GeminiEmbedder) ForDocuments() *GeminiEmbedder {
	cp := *e
	cp.taskType = TaskRetrievalDocument
	return &cp
}

func (e *GeminiEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	modelName := e.model
	options := embedding.GetCommonOptions(&embedding.Options{Model: &modelName}, opts...)
	if options.Model != nil && *options.Model != "" {
		modelName = *options.Model
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimensions > 0 {
		dims := e.dimensions
		cfg.OutputDimensionality = &dims
	}

	resp, err := e.client.Models.EmbedContent(ctx, modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed content: expected %d embeddings", len(texts))
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("embed content: empty embedding at %d", i)
		}
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}

var _ embedding.Embedder = (*GeminiEmbedder)(nil)
