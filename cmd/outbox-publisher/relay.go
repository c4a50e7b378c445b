package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	publishTimeout = 15 * time.Second
	maxIdleDelay   = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type rowStore interface {
	FetchUnpublishedTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type topic interface {
	Ping(context.Context) error
	Send(ctx context.Context, msg *gcppubsub.Message) error
}

var errUndecodable = errors.New("payload is not an outbox envelope")

type outcome int

const (
	published outcome = iota
	retried
	parked
)

type batchStats struct {
	published int
	retried   int
	parked    int
}

func (b batchStats) total() int { return b.published + b.retried + b.parked }

type RelayParams struct {
	Outbox config.OutboxConfig
	Logger *logger.Logger
	DB     txRunner
	Rows   rowStore
	Topic  topic
}

// Relay moves committed outbox rows onto the domain topic. Rows are locked
// per batch, so several relays can share one table.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	rows        rowStore
	topic       topic
	batchSize   int
	maxAttempts int
	pace        pacer
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("relay: logger required")
	case params.DB == nil:
		return nil, errors.New("relay: database required")
	case params.Rows == nil:
		return nil, errors.New("relay: outbox rows required")
	case params.Topic == nil:
		return nil, errors.New("relay: topic required")
	}
	cfg := params.Outbox
	return &Relay{
		logg:        params.Logger,
		db:          params.DB,
		rows:        params.Rows,
		topic:       params.Topic,
		batchSize:   positiveOr(cfg.BatchSize, 50),
		maxAttempts: positiveOr(cfg.MaxAttempts, 10),
		pace:        pacer{base: time.Duration(positiveOr(cfg.PollIntervalMS, 500)) * time.Millisecond, max: maxIdleDelay},
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains batches back to back while there is work, then polls. A failed
// batch doubles the delay up to maxIdleDelay.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	if err := r.topic.Ping(ctx); err != nil {
		return fmt.Errorf("topic not ready: %w", err)
	}

	for {
		stats, err := r.drain(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox.batch_failed", err)
		} else if stats.total() > 0 {
			r.logg.Info(r.logg.WithFields(ctx, map[string]any{
				"published": stats.published,
				"retried":   stats.retried,
				"parked":    stats.parked,
			}), "outbox.batch")
		}

		delay := r.pace.next(err == nil, stats.total() > 0)
		if delay == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// drain handles one locked batch. Publish failures are recorded on the row and
// never abort the batch; only bookkeeping errors roll it back.
func (r *Relay) drain(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := r.rows.FetchUnpublishedTx(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		for _, event := range events {
			result, err := r.deliver(ctx, tx, event)
			if err != nil {
				return err
			}
			switch result {
			case published:
				stats.published++
			case retried:
				stats.retried++
			case parked:
				stats.parked++
			}
		}
		return nil
	})
	return stats, err
}

func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	envelope, err := outbox.Decode(event)
	if err != nil {
		fields := rowFields(event)
		fields["error"] = err.Error()
		r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.parked")
		if err := r.rows.MarkTerminalTx(tx, event.ID, errUndecodable, r.maxAttempts); err != nil {
			return parked, fmt.Errorf("park %s: %w", event.ID, err)
		}
		return parked, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	sendErr := r.topic.Send(sendCtx, message(event, envelope))
	cancel()
	if sendErr != nil {
		fields := rowFields(event)
		fields["event_id"] = envelope.EventID
		fields["attempts_left"] = r.maxAttempts - event.AttemptCount - 1
		fields["error"] = sendErr.Error()
		r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.publish_failed")
		if err := r.rows.MarkFailedTx(tx, event.ID, sendErr); err != nil {
			return retried, fmt.Errorf("record failure %s: %w", event.ID, err)
		}
		return retried, nil
	}

	if err := r.rows.MarkPublishedTx(tx, event.ID); err != nil {
		return published, fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	return published, nil
}

func message(event models.OutboxEvent, envelope outbox.Envelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":         envelope.EventID,
			"event_type":       string(event.EventType),
			"aggregate_type":   string(event.AggregateType),
			"aggregate_id":     event.AggregateID.String(),
			"envelope_version": fmt.Sprint(envelope.Version),
			"occurred_at":      envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func rowFields(event models.OutboxEvent) map[string]any {
	return map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
}

// pacer decides how long to wait before the next batch.
type pacer struct {
	base     time.Duration
	max      time.Duration
	failures int
}

func (p *pacer) next(ok, busy bool) time.Duration {
	if ok {
		p.failures = 0
		if busy {
			return 0
		}
		return p.base + jitter()
	}
	p.failures++
	delay := p.base << min(p.failures, 16)
	if delay <= 0 || delay > p.max {
		delay = p.max
	}
	return delay + jitter()
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}
