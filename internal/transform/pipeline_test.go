package transform

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chirino/solace-bridge/internal/config"
	"github.com/chirino/solace-bridge/internal/model"
	"github.com/chirino/solace-bridge/internal/plugin/blob/memstore"
	brokermem "github.com/chirino/solace-bridge/internal/plugin/broker/memory"
	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
	"github.com/chirino/solace-bridge/internal/store"
)

const inputMT103 = "{1:F01BANKBEBBAXXX0000000000}" +
	"{2:I103BANKDEFFXXXXN}" +
	"{4:\n" +
	":20:FT123\n" +
	":32A:251013USD100000,00\n" +
	":50K:/1234567890\nACME CORP\n" +
	":59:/DE89370400440532013000\nGLOBAL TRADING\n" +
	":71A:OUR\n" +
	"-}"

func testConfig(transformType string) config.Config {
	cfg := config.DefaultConfig()
	cfg.TransformType = transformType
	cfg.RetryMaxAttempts = 2
	cfg.RetryBaseInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	return cfg
}

func startPipeline(t *testing.T, transformType string) (*Pipeline, *brokermem.Broker, *store.Records, *memstore.MemBlobStore) {
	t.Helper()
	broker := brokermem.New()
	blobs := memstore.New()
	records := store.New(blobs, nil)
	cfg := testConfig(transformType)

	p, err := New(broker, records, &cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Close() })
	return p, broker, records, blobs
}

func waitForDelivery(t *testing.T, broker *brokermem.Broker, queue string) registrybroker.Delivery {
	t.Helper()
	var got []registrybroker.Delivery
	require.Eventually(t, func() bool {
		got = append(got, broker.Drain(queue)...)
		return len(got) > 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Len(t, got, 1)
	return got[0]
}

func storedTransformation(t *testing.T, records *store.Records, blobs *memstore.MemBlobStore) *model.TransformationRecord {
	t.Helper()
	var rec *model.TransformationRecord
	require.Eventually(t, func() bool {
		names, err := blobs.List(context.Background(), "transformation-", 10)
		if err != nil || len(names) == 0 {
			return false
		}
		idPart := strings.TrimSuffix(strings.TrimPrefix(names[0], "transformation-"), ".json")
		id, err := uuid.Parse(idPart)
		if err != nil {
			return false
		}
		rec, err = records.GetTransformation(context.Background(), id)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	return rec
}

func TestPipelineTransformsAndPublishes(t *testing.T) {
	p, broker, records, blobs := startPipeline(t, "MT103_TO_MT202")

	inputID := uuid.New().String()
	require.NoError(t, broker.Publish(context.Background(), p.inputQueue, inputMT103,
		map[string]string{"messageId": inputID}))

	out := waitForDelivery(t, broker, p.outputQueue)
	require.Contains(t, out.Payload, "{2:I202BANKDEFFXXXXN}")
	require.Contains(t, out.Payload, ":52A:/1234567890")
	require.Contains(t, out.Payload, ":58A:/DE89370400440532013000")
	require.Contains(t, out.Payload, ":20:FT123")

	// Output correlates back to the input message.
	require.Equal(t, inputID, out.CorrelationID)
	require.Equal(t, inputID, out.Properties["inputMessageId"])
	require.Equal(t, "MT103_TO_MT202", out.Properties["transformationType"])
	require.Equal(t, "MT103", out.Properties["inputMessageType"])
	require.Equal(t, "MT202", out.Properties["outputMessageType"])
	require.NotEmpty(t, out.Properties["transformationId"])
	require.NotEqual(t, inputID, out.MessageID)

	rec := storedTransformation(t, records, blobs)
	require.Equal(t, model.TransformSuccess, rec.Status)
	require.Equal(t, inputID, rec.InputMessageID)
	require.Equal(t, out.MessageID, rec.OutputMessageID)
	require.Equal(t, 1, rec.AttemptCount)
	require.Equal(t, *rec.InputContent, inputMT103)
	require.Contains(t, *rec.OutputContent, "I202")
}

func TestPipelineValidationErrorIsTerminal(t *testing.T) {
	p, broker, records, blobs := startPipeline(t, "MT103_TO_MT202")

	noRef := "{2:I103BANKDEFFXXXXN}{4:\n:32A:251013EUR1,00\n-}"
	require.NoError(t, broker.Publish(context.Background(), p.inputQueue, noRef,
		map[string]string{"messageId": uuid.New().String()}))

	rec := storedTransformation(t, records, blobs)
	require.Equal(t, model.TransformValidationError, rec.Status)
	require.Contains(t, rec.ErrorMessage, ":20:")
	require.Zero(t, broker.Depth(p.outputQueue))
	require.Zero(t, broker.Depth(p.dlq))
}

func TestPipelineParseErrorIsTerminal(t *testing.T) {
	p, broker, records, blobs := startPipeline(t, "MT103_TO_MT202")

	require.NoError(t, broker.Publish(context.Background(), p.inputQueue, "not an MT message",
		map[string]string{"messageId": uuid.New().String()}))

	rec := storedTransformation(t, records, blobs)
	require.Equal(t, model.TransformParseError, rec.Status)
	require.Zero(t, broker.Depth(p.outputQueue))
}

func TestPipelineRetriesThenDeadLetters(t *testing.T) {
	p, broker, records, blobs := startPipeline(t, "CUSTOM")

	inputID := uuid.New().String()
	require.NoError(t, broker.Publish(context.Background(), p.inputQueue, inputMT103,
		map[string]string{"messageId": inputID}))

	dl := waitForDelivery(t, broker, p.dlq)
	var notice DeadLetterNotice
	require.NoError(t, json.Unmarshal([]byte(dl.Payload), &notice))
	require.Equal(t, "transformation not yet implemented", notice.FailureReason)
	require.Equal(t, 2, notice.RetryAttempts)
	require.Equal(t, model.Custom, notice.TransformationType)
	require.Equal(t, inputMT103, notice.OriginalMessage)

	// Consumers that only look at message properties see the same failure data.
	require.Equal(t, "transformation not yet implemented", dl.Properties["failureReason"])
	require.Equal(t, "2", dl.Properties["retryAttempts"])
	require.Equal(t, "CUSTOM", dl.Properties["transformationType"])
	require.Equal(t, notice.TransformationID.String(), dl.Properties["transformationId"])
	require.Equal(t, inputID, dl.Properties["inputMessageId"])

	rec := storedTransformation(t, records, blobs)
	require.Equal(t, model.TransformDeadLetter, rec.Status)
	require.Equal(t, 2, rec.AttemptCount)
	require.Zero(t, broker.Depth(p.outputQueue))
}

// failQueueGateway fails every publish to one queue and delegates the rest.
type failQueueGateway struct {
	registrybroker.Gateway
	queue string
}

func (g *failQueueGateway) Publish(ctx context.Context, dest, payload string, props map[string]string) error {
	if dest == g.queue {
		return errors.New("queue unavailable")
	}
	return g.Gateway.Publish(ctx, dest, payload, props)
}

func TestPipelineOutputPublishFailureIsPartialSuccess(t *testing.T) {
	broker := brokermem.New()
	blobs := memstore.New()
	records := store.New(blobs, nil)
	cfg := testConfig("MT103_TO_MT202")

	gw := &failQueueGateway{Gateway: broker, queue: cfg.OutputQueue}
	p, err := New(gw, records, &cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, broker.Publish(ctx, cfg.InputQueue, inputMT103,
		map[string]string{"messageId": uuid.New().String()}))

	// The transformation succeeded; only delivery failed. The record keeps the
	// output payload and is not retried or dead-lettered.
	rec := storedTransformation(t, records, blobs)
	require.Equal(t, model.TransformPartialSuccess, rec.Status)
	require.Contains(t, rec.ErrorMessage, "output publish failed")
	require.NotEmpty(t, rec.OutputMessageID)
	require.Contains(t, *rec.OutputContent, "I202")
	require.Zero(t, broker.Depth(cfg.OutputQueue))
	require.Zero(t, broker.Depth(cfg.DeadLetterQueue))
}

func TestNewRejectsUnknownType(t *testing.T) {
	cfg := testConfig("MT103_TO_TELEPATHY")
	_, err := New(brokermem.New(), store.New(memstore.New(), nil), &cfg)
	require.Error(t, err)
}

func TestSchedulerDelayBounds(t *testing.T) {
	s := newScheduler(time.Second, 60*time.Second)
	defer s.Close()

	// Attempt 1 starts near the base interval; jitter is ±25%.
	d := s.delay(1)
	require.GreaterOrEqual(t, d, 750*time.Millisecond)
	require.LessOrEqual(t, d, 1250*time.Millisecond)

	// Later attempts never exceed the cap plus jitter.
	d = s.delay(20)
	require.LessOrEqual(t, d, 75*time.Second)
}

func TestSchedulerCloseCancelsTimers(t *testing.T) {
	s := newScheduler(time.Millisecond, time.Second)
	fired := make(chan struct{}, 1)
	require.True(t, s.after(time.Hour, func() { fired <- struct{}{} }))
	s.Close()
	require.False(t, s.after(time.Millisecond, func() { fired <- struct{}{} }))
	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDLQListenerStoresArrivals(t *testing.T) {
	broker := brokermem.New()
	records := store.New(memstore.New(), nil)
	cfg := testConfig("MT103_TO_MT202")
	cfg.DLQWarnThreshold = 2
	cfg.DLQCriticalThreshold = 3

	l := NewDLQListener(broker, records, &cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Close() })

	msgID := uuid.New()
	require.NoError(t, broker.Publish(ctx, cfg.DeadLetterQueue, `{"failureReason":"x"}`,
		map[string]string{"messageId": msgID.String()}))

	require.Eventually(t, func() bool {
		rec, err := records.GetMessage(context.Background(), msgID)
		return err == nil && rec.OriginalStatus == model.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int64(1), l.CountThisHour())
}
