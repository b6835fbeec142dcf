package transform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/chirino/solace-bridge/internal/config"
	"github.com/chirino/solace-bridge/internal/model"
	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
	"github.com/chirino/solace-bridge/internal/store"
)

// DLQListener watches the dead-letter queue, persists every arrival, and
// raises warn/critical log alerts when the hourly arrival rate crosses the
// configured thresholds.
type DLQListener struct {
	broker  registrybroker.Gateway
	records *store.Records
	queue   string
	warn    int64
	crit    int64
	sub     registrybroker.Subscription

	mu        sync.Mutex
	count     int64
	lastReset time.Time
}

// NewDLQListener builds a listener from configuration.
func NewDLQListener(gw registrybroker.Gateway, records *store.Records, cfg *config.Config) *DLQListener {
	return &DLQListener{
		broker:    gw,
		records:   records,
		queue:     cfg.DeadLetterQueue,
		warn:      cfg.DLQWarnThreshold,
		crit:      cfg.DLQCriticalThreshold,
		lastReset: time.Now(),
	}
}

// Start subscribes to the dead-letter queue.
func (l *DLQListener) Start(ctx context.Context) error {
	sub, err := l.broker.Subscribe(ctx, l.queue, l.handle)
	if err != nil {
		return fmt.Errorf("transform: subscribing to dead-letter queue %s: %w", l.queue, err)
	}
	l.sub = sub
	log.Info("dead-letter listener started", "queue", l.queue)
	return nil
}

func (l *DLQListener) handle(ctx context.Context, d registrybroker.Delivery) error {
	count := l.bump()
	switch {
	case count >= l.crit:
		log.Error("dead-letter queue rate critical", "queue", l.queue, "countThisHour", count)
	case count >= l.warn:
		log.Warn("dead-letter queue rate elevated", "queue", l.queue, "countThisHour", count)
	default:
		log.Info("dead-letter message received", "queue", l.queue, "countThisHour", count)
	}

	msgID := uuid.New()
	if d.MessageID != "" {
		if id, err := uuid.Parse(d.MessageID); err == nil {
			msgID = id
		}
	}
	if _, err := l.records.SaveMessage(ctx, msgID, d.Payload, l.queue, d.CorrelationID, model.StatusFailed); err != nil {
		log.Error("storing dead-letter message failed", "messageId", msgID, "error", err)
	}
	return nil
}

// bump increments the hourly counter, rolling the window over on read.
func (l *DLQListener) bump() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastReset) >= time.Hour {
		l.count = 0
		l.lastReset = time.Now()
	}
	l.count++
	return l.count
}

// CountThisHour returns the arrivals in the current window.
func (l *DLQListener) CountThisHour() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastReset) >= time.Hour {
		l.count = 0
		l.lastReset = time.Now()
	}
	return l.count
}

// Close unsubscribes from the queue.
func (l *DLQListener) Close() error {
	if l.sub != nil {
		return l.sub.Unsubscribe()
	}
	return nil
}
