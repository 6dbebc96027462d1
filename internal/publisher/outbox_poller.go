// Package publisher relays outbox events to Kafka and closes checkouts that
// were paid but never completed.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/metrics"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"github.com/segmentio/kafka-go"
)

const (
	eventBatchSize = 100
	stuckBatchSize = 50
)

type Repository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*store.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	GetStuckSessions(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CheckoutSession, error)
}

type Recoverer interface {
	RecoverCheckout(ctx context.Context, cs *domain.CheckoutSession) error
}

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers          []string
	Topic            string
	PollInterval     time.Duration
	RecoveryInterval time.Duration
	StuckAfter       time.Duration
}

type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	stuckAfter   time.Duration
	repo         Repository
	recoverer    Recoverer
	writer       MessageWriter
	now          func() time.Time
	log          *slog.Logger
}

func NewOutboxPoller(repo Repository, recoverer Recoverer, cfg Config) *OutboxPoller {
	if cfg.Topic == "" {
		cfg.Topic = "order-events"
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return newOutboxPoller(repo, recoverer, w, cfg)
}

func newOutboxPoller(repo Repository, recoverer Recoverer, w MessageWriter, cfg Config) *OutboxPoller {
	p := &OutboxPoller{
		timeout:      5 * time.Second,
		eventTick:    cfg.PollInterval,
		recoveryTick: cfg.RecoveryInterval,
		stuckAfter:   cfg.StuckAfter,
		repo:         repo,
		recoverer:    recoverer,
		writer:       w,
		now:          time.Now,
		log:          logging.New("publisher"),
	}
	if p.eventTick <= 0 {
		p.eventTick = time.Second
	}
	if p.recoveryTick <= 0 {
		p.recoveryTick = 30 * time.Second
	}
	if p.stuckAfter <= 0 {
		p.stuckAfter = 5 * time.Minute
	}
	return p
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStuckSessions(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, eventBatchSize)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch events", "err", err)
		return
	}

	for _, event := range events {
		errPublish := p.publishToKafka(ctx, event)
		metrics.OutboxPublished(event.EventType, errPublish)
		if errPublish != nil {
			p.log.ErrorContext(ctx, "failed to publish event", "event_id", event.ID, "event_type", event.EventType, "err", errPublish)
			// keep per-aggregate order: later events wait for the next tick
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.ErrorContext(ctx, "failed to mark event as processed", "event_id", event.ID, "err", err)
			continue
		}
	}
}

// recoverStuckSessions hands checkouts that have sat in PAYMENT_COMPLETED for
// longer than stuckAfter to the recoverer. One failure does not stop the batch.
func (p *OutboxPoller) recoverStuckSessions(ctx context.Context) {
	sessions, err := p.repo.GetStuckSessions(ctx, p.now().Add(-p.stuckAfter), stuckBatchSize)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to get stuck sessions", "err", err)
		return
	}
	for _, cs := range sessions {
		p.log.InfoContext(ctx, "recovering stuck session", "checkout_id", cs.ID)
		if err := p.recoverer.RecoverCheckout(ctx, cs); err != nil {
			p.log.ErrorContext(ctx, "failed to recover session", "checkout_id", cs.ID, "err", err)
			continue
		}
		p.log.InfoContext(ctx, "session recovered", "checkout_id", cs.ID)
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *store.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // checkout_id for ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
