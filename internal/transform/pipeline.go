// Package transform consumes messages from an input queue, applies one
// configured SWIFT transformation, publishes the result, and records every
// attempt as an encrypted transformation record. Failed transformations are
// retried with exponential backoff before landing on the dead-letter queue.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/chirino/solace-bridge/internal/config"
	"github.com/chirino/solace-bridge/internal/metrics"
	"github.com/chirino/solace-bridge/internal/model"
	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
	"github.com/chirino/solace-bridge/internal/store"
	"github.com/chirino/solace-bridge/internal/swift"
)

const recordTimeout = 30 * time.Second

// DeadLetterNotice is the payload published to the dead-letter queue when a
// message exhausts its retries.
type DeadLetterNotice struct {
	FailureReason      string                   `json:"failureReason"`
	RetryAttempts      int                      `json:"retryAttempts"`
	TransformationType model.TransformationType `json:"transformationType"`
	TransformationID   uuid.UUID                `json:"transformationId"`
	OriginalMessage    string                   `json:"originalMessage,omitempty"`
}

// Pipeline is one input-queue consumer bound to a single transformation type.
type Pipeline struct {
	broker      registrybroker.Gateway
	records     *store.Records
	ttype       model.TransformationType
	inputQueue  string
	outputQueue string
	dlq         string
	maxAttempts int
	sched       *scheduler
	sub         registrybroker.Subscription
}

// New builds a pipeline from configuration.
func New(gw registrybroker.Gateway, records *store.Records, cfg *config.Config) (*Pipeline, error) {
	ttype, err := model.ParseTransformationType(cfg.TransformType)
	if err != nil {
		return nil, err
	}
	maxAttempts := cfg.RetryMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pipeline{
		broker:      gw,
		records:     records,
		ttype:       ttype,
		inputQueue:  cfg.InputQueue,
		outputQueue: cfg.OutputQueue,
		dlq:         cfg.DeadLetterQueue,
		maxAttempts: maxAttempts,
		sched:       newScheduler(cfg.RetryBaseInterval, cfg.RetryMaxInterval),
	}, nil
}

// Start subscribes to the input queue. Every delivery is acked once it has
// entered the pipeline; redelivery from here on is the retry scheduler's job.
func (p *Pipeline) Start(ctx context.Context) error {
	sub, err := p.broker.Subscribe(ctx, p.inputQueue, func(ctx context.Context, d registrybroker.Delivery) error {
		if d.Payload == "" {
			log.Warn("empty payload on input queue, discarding", "queue", p.inputQueue)
			return nil
		}
		p.process(ctx, d, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("transform: subscribing to %s: %w", p.inputQueue, err)
	}
	p.sub = sub
	log.Info("transformation pipeline started",
		"type", p.ttype, "inputQueue", p.inputQueue, "outputQueue", p.outputQueue)
	return nil
}

// process runs one transformation attempt and routes the outcome: terminal
// statuses are stored, transient failures are rescheduled until maxAttempts,
// then dead-lettered.
func (p *Pipeline) process(ctx context.Context, d registrybroker.Delivery, attempt int) {
	start := time.Now()
	res := swift.Transform(d.Payload, p.ttype)

	rec := &model.TransformationRecord{
		TransformationID:   uuid.New(),
		InputMessageID:     d.MessageID,
		InputMessageType:   inputType(d.Payload),
		OutputMessageType:  res.OutputMessageType,
		TransformationType: p.ttype,
		Status:             res.Status,
		InputQueue:         p.inputQueue,
		OutputQueue:        p.outputQueue,
		CorrelationID:      d.CorrelationID,
		Timestamp:          time.Now().UTC(),
		ProcessingTimeMs:   time.Since(start).Milliseconds(),
		AttemptCount:       attempt,
		ErrorMessage:       res.ErrorMessage,
		Warnings:           res.Warnings,
		ConfidenceScore:    res.ConfidenceScore,
	}

	switch res.Status {
	case model.TransformParseError, model.TransformValidationError:
		log.Warn("transformation rejected input", "status", res.Status,
			"transformationId", rec.TransformationID, "error", res.ErrorMessage)
		metrics.IncLabel(metrics.TransformationsTotal, string(res.Status))
		p.saveRecord(rec, d.Payload, "")

	case model.TransformSuccess:
		p.publishOutput(ctx, d, rec, res)

	default:
		if attempt < p.maxAttempts {
			p.scheduleRetry(d, attempt)
			return
		}
		p.deadLetter(ctx, d, rec, res, attempt)
	}
}

// publishOutput sends the transformed message to the output queue. The output
// carries a fresh message id and the input message id as its correlation id so
// downstream consumers can trace lineage. A publish failure downgrades the
// record to PARTIAL_SUCCESS; the transformation itself succeeded.
func (p *Pipeline) publishOutput(ctx context.Context, d registrybroker.Delivery, rec *model.TransformationRecord, res swift.Result) {
	outputID := uuid.New()
	rec.OutputMessageID = outputID.String()
	props := map[string]string{
		"messageId":          outputID.String(),
		"correlationId":      d.MessageID,
		"transformationType": string(p.ttype),
		"transformationId":   rec.TransformationID.String(),
		"inputMessageId":     d.MessageID,
		"inputMessageType":   rec.InputMessageType,
		"outputMessageType":  rec.OutputMessageType,
		"timestamp":          rec.Timestamp.Format(time.RFC3339),
	}
	if err := p.broker.Publish(ctx, p.outputQueue, res.OutputMessage, props); err != nil {
		log.Error("publishing transformed message failed",
			"transformationId", rec.TransformationID, "queue", p.outputQueue, "error", err)
		rec.Status = model.TransformPartialSuccess
		rec.ErrorMessage = fmt.Sprintf("output publish failed: %v", err)
	}
	metrics.IncLabel(metrics.TransformationsTotal, string(rec.Status))
	p.saveRecord(rec, d.Payload, res.OutputMessage)
}

// scheduleRetry re-runs the delivery after a backoff delay. The broker has
// already acked the message; the retry is purely in-process.
func (p *Pipeline) scheduleRetry(d registrybroker.Delivery, attempt int) {
	delay := p.sched.delay(attempt)
	metrics.Inc(metrics.TransformRetriesTotal)
	log.Info("scheduling transformation retry",
		"messageId", d.MessageID, "attempt", attempt+1, "delay", delay)
	ok := p.sched.after(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		p.process(ctx, d, attempt+1)
	})
	if !ok {
		log.Warn("scheduler closed, dropping retry", "messageId", d.MessageID)
	}
}

// deadLetter publishes a failure notice to the dead-letter queue and stores a
// DEAD_LETTER record carrying the original payload.
func (p *Pipeline) deadLetter(ctx context.Context, d registrybroker.Delivery, rec *model.TransformationRecord, res swift.Result, attempts int) {
	rec.Status = model.TransformDeadLetter
	notice := DeadLetterNotice{
		FailureReason:      res.ErrorMessage,
		RetryAttempts:      attempts,
		TransformationType: p.ttype,
		TransformationID:   rec.TransformationID,
		OriginalMessage:    d.Payload,
	}
	payload, err := json.Marshal(notice)
	if err == nil {
		props := map[string]string{
			"failureReason":      res.ErrorMessage,
			"retryAttempts":      strconv.Itoa(attempts),
			"transformationType": string(p.ttype),
			"transformationId":   rec.TransformationID.String(),
			"inputMessageId":     d.MessageID,
		}
		if err := p.broker.Publish(ctx, p.dlq, string(payload), props); err != nil {
			log.Error("publishing to dead-letter queue failed",
				"transformationId", rec.TransformationID, "error", err)
		} else {
			metrics.Inc(metrics.DeadLetteredTotal)
		}
	}
	log.Error("transformation dead-lettered", "transformationId", rec.TransformationID,
		"messageId", d.MessageID, "attempts", attempts, "error", res.ErrorMessage)
	metrics.IncLabel(metrics.TransformationsTotal, string(model.TransformDeadLetter))
	p.saveRecord(rec, d.Payload, "")
}

func (p *Pipeline) saveRecord(rec *model.TransformationRecord, input, output string) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := p.records.SaveTransformation(ctx, rec, input, output); err != nil {
		metrics.Inc(metrics.StoreFailuresTotal)
		log.Error("storing transformation record failed",
			"transformationId", rec.TransformationID, "error", err)
	}
}

// inputType best-effort detects the MT type of the raw payload for the
// record; it never fails.
func inputType(payload string) string {
	msg, err := swift.Parse(payload)
	if err != nil {
		return ""
	}
	if t := msg.Type(); t != "" {
		return "MT" + t
	}
	return ""
}

// Close unsubscribes and cancels pending retries.
func (p *Pipeline) Close() error {
	p.sched.Close()
	if p.sub != nil {
		return p.sub.Unsubscribe()
	}
	return nil
}
