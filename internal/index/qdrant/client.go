// Package qdrant implements the index contract over the Qdrant gRPC API.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/calyx-ai/retrieval/internal/domain"
	"github.com/calyx-ai/retrieval/internal/index"
)

// Payload keys probed for document text, in priority order.
var textKeys = []string{"text", "content"}

// Config holds Qdrant connection settings.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Client is a single Qdrant handle satisfying index.SearchClient.
type Client struct {
	inner *qdrant.Client
}

var _ index.SearchClient = (*Client)(nil)

// New dials the Qdrant gRPC endpoint.
func New(cfg Config) (*Client, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Client{inner: c}, nil
}

// Factory returns an index.Factory producing handles for the given config.
func Factory(cfg Config) index.Factory {
	return func(_ context.Context) (index.SearchClient, error) {
		return New(cfg)
	}
}

// Search runs a KNN query against one collection.
func (c *Client) Search(
	ctx context.Context, collection string,
	vector []float32, topK int, filter map[string]string,
) ([]index.Hit, error) {
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter))
		for field, value := range filter {
			conditions = append(conditions, qdrant.NewMatch(field, value))
		}
		req.Filter = &qdrant.Filter{Must: conditions}
	}

	points, err := c.inner.Query(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	hits := make([]index.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, index.Hit{
			ID:      pointID(p.GetId()),
			Score:   float64(p.GetScore()),
			Text:    payloadText(p.GetPayload()),
			Payload: payloadToMap(p.GetPayload()),
		})
	}
	return hits, nil
}

// HealthCheck probes service availability via the cheap health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.inner.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.inner.Close()
}

// classify maps Qdrant errors onto domain sentinels. Invalid-argument
// failures are caller bugs and must not be retried.
func classify(err error) error {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.InvalidArgument, codes.NotFound:
			return fmt.Errorf("%w: %s", domain.ErrMalformedRequest, s.Message())
		}
	}
	return fmt.Errorf("qdrant query: %w", err)
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func payloadText(payload map[string]*qdrant.Value) string {
	for _, key := range textKeys {
		if v, ok := payload[key]; ok {
			if s := v.GetStringValue(); s != "" {
				return s
			}
		}
	}
	return ""
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]any, 0, len(items))
		for _, item := range items {
			list = append(list, valueToAny(item))
		}
		return list
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		m := make(map[string]any, len(fields))
		for k, item := range fields {
			m[k] = valueToAny(item)
		}
		return m
	default:
		return nil
	}
}
