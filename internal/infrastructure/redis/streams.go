package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	"github.com/redis/go-redis/v9"
)

const DefaultAuditStream = "integrations:audit"

// AuditPublisher appends audit entries to a Redis stream.
type AuditPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewAuditPublisher(client redis.Cmdable, stream string) *AuditPublisher {
	if stream == "" {
		stream = DefaultAuditStream
	}
	return &AuditPublisher{client: client, stream: stream, maxLen: 100000}
}

func (p *AuditPublisher) Publish(ctx context.Context, entry *audit.Entry) error {
	values := entry.Fields()
	values["publishedAt"] = time.Now().Unix()

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}
	return nil
}
