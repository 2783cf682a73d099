package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config binds QDRANT_* environment variables.
type Config struct {
	URL        string        `split_words:"true" default:"http://localhost:6333"`
	APIKey     string        `envconfig:"QDRANT_API_KEY"`
	Collection string        `split_words:"true" default:"queries"`
	Distance   string        `split_words:"true" default:"Cosine"`
	Timeout    time.Duration `split_words:"true" default:"30s"`
}

// Point is an upsert unit. ID is any string and is mapped to a stable UUID.
type Point struct {
	ID      string
	Vector  []float64
	Payload map[string]any
}

// ScoredPoint is a search hit. Score is 0 for scroll results.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// PayloadIDField keeps the caller's id next to the derived point UUID.
const PayloadIDField = "doc_id"

// Client talks to the Qdrant REST API for a single collection.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client

	ensureOnce sync.Once
	ensureErr  error
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.Collection == "" {
		cfg.Collection = "queries"
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		base = "http://localhost:6333"
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Collection returns the configured collection name.
func (c *Client) Collection() string {
	return c.cfg.Collection
}

var pointNamespace = uuid.MustParse("6f1c3b1e-8d0a-4b7e-9a53-2c4f0e9d7a11")

// PointID derives the UUID Qdrant stores for a caller id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// EnsureCollection creates the collection once per client and adds full-text
// payload indexes for textFields. An existing collection is accepted.
func (c *Client) EnsureCollection(ctx context.Context, vectorSize int, textFields ...string) error {
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}
	c.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{"size": vectorSize, "distance": c.cfg.Distance},
		}
		err := c.doJSON(ctx, http.MethodPut, c.collectionPath(""), body, nil)
		if err != nil && !strings.Contains(err.Error(), "status=409") {
			c.ensureErr = err
			return
		}
		for _, field := range textFields {
			idx := map[string]any{"field_name": field, "field_schema": "text"}
			if err := c.doJSON(ctx, http.MethodPut, c.collectionPath("/index?wait=true"), idx, nil); err != nil {
				c.ensureErr = err
				return
			}
		}
	})
	return c.ensureErr
}

// Upsert writes points and waits for the operation to be applied.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}
	body := struct {
		Points []point `json:"points"`
	}{Points: make([]point, 0, len(points))}

	for i, p := range points {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("point[%d] has empty id", i)
		}
		if len(p.Vector) == 0 {
			return fmt.Errorf("point[%d] has no vector", i)
		}
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload[PayloadIDField] = p.ID
		body.Points = append(body.Points, point{ID: PointID(p.ID), Vector: p.Vector, Payload: payload})
	}
	return c.doJSON(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), body, nil)
}

type rawPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (r rawPoint) scored() ScoredPoint {
	id := fmt.Sprint(r.ID)
	if v, ok := r.Payload[PayloadIDField].(string); ok && v != "" {
		id = v
	}
	return ScoredPoint{ID: id, Score: r.Score, Payload: r.Payload}
}

// Search runs a nearest-neighbour query.
func (c *Client) Search(ctx context.Context, vector []float64, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		return []ScoredPoint{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	body := map[string]any{"vector": vector, "limit": limit, "with_payload": true}
	var resp struct {
		Result []rawPoint `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/search"), body, &resp); err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, r.scored())
	}
	return out, nil
}

// ScrollText returns points whose field matches any of the terms.
func (c *Client) ScrollText(ctx context.Context, field string, terms []string, limit int) ([]ScoredPoint, error) {
	if limit <= 0 || len(terms) == 0 {
		return []ScoredPoint{}, nil
	}
	should := make([]map[string]any, 0, len(terms))
	for _, term := range terms {
		should = append(should, map[string]any{"key": field, "match": map[string]any{"text": term}})
	}
	body := map[string]any{
		"filter":       map[string]any{"should": should},
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	var resp struct {
		Result struct {
			Points []rawPoint `json:"points"`
		} `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/scroll"), body, &resp); err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(resp.Result.Points))
	for _, r := range resp.Result.Points {
		out = append(out, r.scored())
	}
	return out, nil
}

// Count returns the exact number of points.
func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Delete removes points by caller id.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	points := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			points = append(points, PointID(id))
		}
	}
	if len(points) == 0 {
		return nil
	}
	return c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/delete?wait=true"), map[string]any{"points": points}, nil)
}

// Ping checks that the collection is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, c.collectionPath(""), nil, nil)
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(c.cfg.Collection) + suffix
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
