package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleEvent(ref string) model.TransferEvent {
	return model.TransferEvent{
		ReferenceID: ref, SenderUserID: 1, TransactionID: 42,
		ReceiverWalletNumber: "W2", Amount: decimal.RequireFromString("200.50"), Currency: "USD",
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { f.closed = true; return nil }

func TestKafkaSubscriber_CommitsEveryMessage(t *testing.T) {
	good, err := encode(sampleEvent("TX-A"))
	require.NoError(t, err)
	failing, err := encode(sampleEvent("TX-B"))
	require.NoError(t, err)

	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("{not json")},
		{Offset: 3, Value: failing},
	}}
	sub := &KafkaSubscriber{reader: reader, log: zap.NewNop().Sugar()}

	var seen []string
	err = sub.Subscribe(context.Background(), func(ctx context.Context, evt model.TransferEvent) error {
		seen = append(seen, evt.ReferenceID)
		if evt.ReferenceID == "TX-B" {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"TX-A", "TX-B"}, seen)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
	assert.True(t, reader.closed)
}

func TestKafkaSubscriber_RedeliversDeferredEvents(t *testing.T) {
	payload, err := encode(sampleEvent("TX-D"))
	require.NoError(t, err)
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: payload}}}
	sub := (&KafkaSubscriber{reader: reader, log: zap.NewNop().Sugar()}).WithRedelivery(3, time.Millisecond)

	calls := 0
	err = sub.Subscribe(context.Background(), func(ctx context.Context, evt model.TransferEvent) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: busy", ErrRedeliver)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestKafkaSubscriber_CommitsAfterRedeliveriesExhausted(t *testing.T) {
	payload, err := encode(sampleEvent("TX-D"))
	require.NoError(t, err)
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: payload}}}
	sub := (&KafkaSubscriber{reader: reader, log: zap.NewNop().Sugar()}).WithRedelivery(2, time.Millisecond)

	calls := 0
	err = sub.Subscribe(context.Background(), func(ctx context.Context, evt model.TransferEvent) error {
		calls++
		return ErrRedeliver
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestKafkaSubscriber_CancelDuringRedeliveryLeavesUncommitted(t *testing.T) {
	payload, err := encode(sampleEvent("TX-D"))
	require.NoError(t, err)
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: payload}}}
	sub := (&KafkaSubscriber{reader: reader, log: zap.NewNop().Sugar()}).WithRedelivery(3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	err = sub.Subscribe(ctx, func(ctx context.Context, evt model.TransferEvent) error {
		cancel()
		return ErrRedeliver
	})

	require.NoError(t, err)
	assert.Empty(t, reader.committed)
	assert.True(t, reader.closed)
}

func TestEventRoundTripKeepsAmountPrecision(t *testing.T) {
	b, err := encode(sampleEvent("TX-P"))
	require.NoError(t, err)
	evt, err := decode(b)
	require.NoError(t, err)
	assert.True(t, evt.Amount.Equal(decimal.RequireFromString("200.50")))
	assert.Equal(t, uint64(42), evt.TransactionID)
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, sampleEvent("TX-1")))
	assert.ErrorIs(t, q.Publish(ctx, sampleEvent("TX-2")), ErrQueueFull)

	q.DropPublishes(true)
	assert.ErrorIs(t, q.Publish(ctx, sampleEvent("TX-3")), ErrDropped)
	q.DropPublishes(false)

	var got []string
	require.NoError(t, q.Drain(ctx, func(ctx context.Context, evt model.TransferEvent) error {
		got = append(got, evt.ReferenceID)
		return nil
	}))
	assert.Equal(t, []string{"TX-1"}, got)
	assert.Equal(t, 0, q.Len())
	assert.Len(t, q.Published(), 1)
}

func TestMemoryQueue_SubscribeStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, sampleEvent("TX-1")))

	done := make(chan struct{})
	go func() {
		_ = q.Subscribe(ctx, func(ctx context.Context, evt model.TransferEvent) error {
			close(done)
			return nil
		})
	}()
	<-done
	cancel()
}

func TestMemoryQueue_SubscribeRequeuesRedeliveries(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Publish(ctx, sampleEvent("TX-1")))

	done := make(chan int)
	calls := 0
	go func() {
		_ = q.Subscribe(ctx, func(ctx context.Context, evt model.TransferEvent) error {
			calls++
			if calls < 2 {
				return ErrRedeliver
			}
			done <- calls
			return nil
		})
	}()

	select {
	case n := <-done:
		assert.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("event was not redelivered")
	}
}
