package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/prom"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/redis"
	"github.com/google/uuid"
)

const (
	fieldData = "data"
	fieldType = "type"
)

// Handler processes one event. A nil return acknowledges the entry; an error
// leaves it pending so it is redelivered after the visibility timeout.
type Handler func(ctx context.Context, ev model.XrefEvent) error

type StreamConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

// Stream publishes and consumes cross-reference change events on a redis stream.
type Stream struct {
	adapter redis.RedisAdapter
	config  StreamConfig
}

type StreamStats struct {
	Length  int64
	Pending int64
}

func NewStream(ctx context.Context, adapter redis.RedisAdapter, config StreamConfig) (*Stream, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "xref-audit"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	if err := adapter.XGroupCreateMkStream(ctx, config.Name, config.ConsumerGroup, "0"); err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Stream{adapter: adapter, config: config}, nil
}

func (s *Stream) Config() StreamConfig {
	return s.config
}

// Publish appends ev to the stream, assigning an id and timestamp when missing.
func (s *Stream) Publish(ctx context.Context, ev model.XrefEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		prom.IncEvent("out", string(ev.Type), "error")
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = s.adapter.XAdd(ctx, s.config.Name, s.config.MaxLen, map[string]interface{}{
		fieldData: string(data),
		fieldType: string(ev.Type),
	})
	if err != nil {
		prom.IncEvent("out", string(ev.Type), "error")
		return fmt.Errorf("publish event: %w", err)
	}
	prom.IncEvent("out", string(ev.Type), "ok")
	return nil
}

// Consume polls the stream until ctx is cancelled.
func (s *Stream) Consume(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("event handler is required")
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Poll(ctx, handler); err != nil && ctx.Err() == nil {
				logger.Error("poll events failed", "stream", s.config.Name, "error", err)
			}
			if _, err := s.Reclaim(ctx, handler); err != nil && ctx.Err() == nil {
				logger.Error("reclaim events failed", "stream", s.config.Name, "error", err)
			}
		}
	}
}

// Poll reads one batch of new entries and hands them to handler. It returns the
// number of entries acknowledged.
func (s *Stream) Poll(ctx context.Context, handler Handler) (int, error) {
	messages, err := s.adapter.XReadGroup(ctx,
		s.config.ConsumerGroup,
		s.config.ConsumerName,
		s.config.Name,
		">",
		s.config.BatchSize,
		0,
	)
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, msg := range messages {
		if s.handle(ctx, msg, handler) {
			acked++
		}
	}
	return acked, nil
}

// Reclaim takes over entries left pending longer than the visibility timeout.
// Entries delivered more than MaxRetries times are dead-lettered.
func (s *Stream) Reclaim(ctx context.Context, handler Handler) (int, error) {
	pending, err := s.adapter.XPendingExt(ctx, s.config.Name, s.config.ConsumerGroup, "-", "+", 100)
	if err != nil || len(pending) == 0 {
		return 0, err
	}

	var retry, exhausted []string
	for _, p := range pending {
		if p.Idle < s.config.VisibilityTimeout {
			continue
		}
		if p.RetryCount > int64(s.config.MaxRetries) {
			exhausted = append(exhausted, p.ID)
		} else {
			retry = append(retry, p.ID)
		}
	}

	if len(exhausted) > 0 {
		messages, err := s.adapter.XClaim(ctx, s.config.Name, s.config.ConsumerGroup, s.config.ConsumerName, s.config.VisibilityTimeout, exhausted...)
		if err != nil {
			return 0, err
		}
		for _, msg := range messages {
			s.deadLetter(ctx, msg, "retries exhausted")
		}
	}

	if len(retry) == 0 {
		return 0, nil
	}
	messages, err := s.adapter.XClaim(ctx, s.config.Name, s.config.ConsumerGroup, s.config.ConsumerName, s.config.VisibilityTimeout, retry...)
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, msg := range messages {
		if s.handle(ctx, msg, handler) {
			acked++
		}
	}
	return acked, nil
}

func (s *Stream) Stats(ctx context.Context) (*StreamStats, error) {
	length, err := s.adapter.XLen(ctx, s.config.Name)
	if err != nil {
		return nil, err
	}
	pending, err := s.adapter.XPending(ctx, s.config.Name, s.config.ConsumerGroup)
	if err != nil {
		return nil, err
	}
	return &StreamStats{Length: length, Pending: pending.Count}, nil
}

func (s *Stream) handle(ctx context.Context, msg redis.StreamMessage, handler Handler) bool {
	ev, err := decode(msg)
	if err != nil {
		logger.Warn("dropping malformed event", "stream", s.config.Name, "id", msg.ID, "error", err)
		s.deadLetter(ctx, msg, err.Error())
		return true
	}

	hctx, cancel := context.WithTimeout(ctx, s.config.VisibilityTimeout)
	defer cancel()

	if err := handler(hctx, ev); err != nil {
		logger.Warn("event handler failed", "stream", s.config.Name, "id", msg.ID, "type", ev.Type, "error", err)
		prom.IncEvent("in", string(ev.Type), "error")
		return false
	}

	if err := s.ack(ctx, msg.ID); err != nil {
		logger.Error("ack event failed", "stream", s.config.Name, "id", msg.ID, "error", err)
		return false
	}
	prom.IncEvent("in", string(ev.Type), "ok")
	return true
}

func (s *Stream) ack(ctx context.Context, id string) error {
	return s.adapter.XAck(ctx, s.config.Name, s.config.ConsumerGroup, id)
}

func (s *Stream) deadLetter(ctx context.Context, msg redis.StreamMessage, reason string) {
	prom.IncEvent("in", stringValue(msg.Values[fieldType]), "dead")
	if s.config.EnableDLQ {
		values := map[string]interface{}{
			fieldData:     stringValue(msg.Values[fieldData]),
			fieldType:     stringValue(msg.Values[fieldType]),
			"original_id": msg.ID,
			"reason":      reason,
			"failed_at":   time.Now().Unix(),
		}
		if _, err := s.adapter.XAdd(ctx, s.config.Name+":dlq", s.config.MaxLen, values); err != nil {
			logger.Error("dead letter event failed", "stream", s.config.Name, "id", msg.ID, "error", err)
			return
		}
	}
	if err := s.ack(ctx, msg.ID); err != nil {
		logger.Error("ack event failed", "stream", s.config.Name, "id", msg.ID, "error", err)
	}
}

func decode(msg redis.StreamMessage) (model.XrefEvent, error) {
	var ev model.XrefEvent
	raw, ok := msg.Values[fieldData].(string)
	if !ok || raw == "" {
		return ev, fmt.Errorf("entry has no %s field", fieldData)
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return ev, fmt.Errorf("event has no type")
	}
	return ev, nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
