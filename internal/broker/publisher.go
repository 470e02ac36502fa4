package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// Publisher appends events to a stream.
type Publisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewPublisher creates a publisher for stream. The stream is trimmed to roughly maxLen entries.
func NewPublisher(client redis.UniversalClient, stream string, maxLen int64) *Publisher {
	validation.AssertDependency(client, "broker: redis client")
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish appends evt with XADD and returns once Redis acknowledged the write.
func (p *Publisher) Publish(ctx context.Context, evt OrderPlaced) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			fieldUserID:  evt.UserID,
			fieldPayload: string(payload),
		},
	}).Err()
	if err != nil {
		return apperr.Unavailable("broker", fmt.Errorf("failed to publish to %s: %w", p.stream, err))
	}
	return nil
}
