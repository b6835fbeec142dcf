// Package bridge implements the send pipeline: exclusion check, broker
// publish, and asynchronous encrypted storage of the message record.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/chirino/solace-bridge/internal/exclusion"
	"github.com/chirino/solace-bridge/internal/metrics"
	"github.com/chirino/solace-bridge/internal/model"
	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
	"github.com/chirino/solace-bridge/internal/store"
)

// storeTimeout bounds one async record write. Store tasks run detached from
// the request context so a client disconnect cannot abort the write.
const storeTimeout = 30 * time.Second

// SendRequest is one message to bridge to the broker.
type SendRequest struct {
	Content       string `json:"content" binding:"required"`
	Destination   string `json:"destination" binding:"required"`
	CorrelationID string `json:"correlationId"`
	MessageType   string `json:"messageType"`
}

// SendResult reports what happened to a message.
type SendResult struct {
	MessageID uuid.UUID           `json:"messageId"`
	Status    model.MessageStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
}

// Bridge wires the exclusion engine, broker gateway, record store and the
// async store worker pool into the send pipeline.
type Bridge struct {
	broker  registrybroker.Gateway
	records *store.Records
	engine  *exclusion.Engine
	pool    *Pool
}

// New builds a Bridge. The pool is owned by the bridge and drained on Close.
func New(gw registrybroker.Gateway, records *store.Records, engine *exclusion.Engine, workers, queueCapacity int) *Bridge {
	return &Bridge{
		broker:  gw,
		records: records,
		engine:  engine,
		pool:    NewPool(workers, queueCapacity),
	}
}

// Send runs the pipeline for one message. Excluded messages never reach the
// broker; a failed publish is reported in the result, not as an error, so the
// record is still stored with its FAILED status.
func (b *Bridge) Send(ctx context.Context, req SendRequest) SendResult {
	return b.send(ctx, req, model.StatusSent)
}

// send is the pipeline shared by Send and Republish; okStatus is the status
// recorded when the publish succeeds.
func (b *Bridge) send(ctx context.Context, req SendRequest, okStatus model.MessageStatus) SendResult {
	msgID := uuid.New()

	if b.engine != nil && b.engine.ShouldExclude(req.Content, req.MessageType) {
		metrics.Inc(metrics.MessagesExcludedTotal)
		log.Info("message excluded", "messageId", msgID, "destination", req.Destination)
		b.storeAsync(msgID, req, model.StatusExcluded)
		return SendResult{MessageID: msgID, Status: model.StatusExcluded}
	}

	result := SendResult{MessageID: msgID, Status: okStatus}
	props := map[string]string{"messageId": msgID.String()}
	if req.CorrelationID != "" {
		props["correlationId"] = req.CorrelationID
	}
	if err := b.broker.Publish(ctx, req.Destination, req.Content, props); err != nil {
		metrics.IncLabel(metrics.PublishesTotal, "error")
		log.Error("publish failed", "messageId", msgID, "destination", req.Destination, "error", err)
		result.Status = model.StatusFailed
		result.Error = err.Error()
	} else {
		metrics.IncLabel(metrics.PublishesTotal, "ok")
	}

	b.storeAsync(msgID, req, result.Status)
	return result
}

// storeAsync hands the record write to the worker pool. On saturation the
// task is dropped and counted; the send path never blocks on storage.
func (b *Bridge) storeAsync(msgID uuid.UUID, req SendRequest, status model.MessageStatus) {
	ok := b.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if _, err := b.records.SaveMessage(ctx, msgID, req.Content, req.Destination, req.CorrelationID, status); err != nil {
			metrics.Inc(metrics.StoreFailuresTotal)
			log.Error("storing message record failed", "messageId", msgID, "error", err)
		}
	})
	if !ok {
		metrics.Inc(metrics.StoreTasksDroppedTotal)
		log.Warn("store queue saturated, dropping record", "messageId", msgID)
	}
}

// Republish loads a stored message, decrypts it, and drives it through the
// same pipeline under a fresh message id: exclusion rules apply and a failed
// publish is stored as FAILED rather than aborting. A successful republish
// stores a new REPUBLISHED record; the original record is left untouched.
func (b *Bridge) Republish(ctx context.Context, id uuid.UUID) (SendResult, error) {
	rec, err := b.records.GetMessage(ctx, id)
	if err != nil {
		return SendResult{}, err
	}
	if rec.Content == nil {
		return SendResult{}, fmt.Errorf("bridge: message %s has no content", id)
	}

	result := b.send(ctx, SendRequest{
		Content:       *rec.Content,
		Destination:   rec.Destination,
		CorrelationID: rec.CorrelationID,
	}, model.StatusRepublished)

	log.Info("message republished", "originalId", id, "messageId", result.MessageID,
		"destination", rec.Destination, "status", result.Status)
	return result, nil
}

// Close drains the async store queue.
func (b *Bridge) Close() {
	b.pool.Close()
}
