package queue

import (
	"context"
	"errors"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes events keyed by reference id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish sends to Kafka.
func (p *KafkaPublisher) Publish(ctx context.Context, evt model.TransferEvent) error {
	payload, err := encode(evt)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(evt.ReferenceID),
		Value: payload,
		Time:  time.Now(),
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// messageReader is the subset of *kafka.Reader used by KafkaSubscriber.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultRedeliveries    = 3
	defaultRedeliveryDelay = time.Second
)

// KafkaSubscriber consumes events as a member of a consumer group.
type KafkaSubscriber struct {
	reader       messageReader
	log          *zap.SugaredLogger
	redeliveries int
	delay        time.Duration
}

func NewKafkaSubscriber(r *kafka.Reader, log *zap.SugaredLogger) *KafkaSubscriber {
	return &KafkaSubscriber{reader: r, log: log, redeliveries: defaultRedeliveries, delay: defaultRedeliveryDelay}
}

// WithRedelivery sets how often, and how far apart, an event whose handler
// returned ErrRedeliver is handed over again before it is committed.
func (s *KafkaSubscriber) WithRedelivery(n int, delay time.Duration) *KafkaSubscriber {
	s.redeliveries, s.delay = n, delay
	return s
}

// Subscribe fetches, handles and commits messages until ctx is done.
// ErrRedeliver errors are redelivered in place a bounded number of times.
// Every other outcome is committed, including handler failures: the ledger
// row stays PENDING and the recovery sweep republishes it.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, h Handler) error {
	defer s.reader.Close()
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !s.handle(ctx, msg, h) {
			// cancelled while waiting to redeliver; leave it uncommitted
			return nil
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Errorf("commit offset=%d partition=%d: %v", msg.Offset, msg.Partition, err)
		}
	}
}

// handle reports whether msg may be committed.
func (s *KafkaSubscriber) handle(ctx context.Context, msg kafka.Message, h Handler) bool {
	evt, err := decode(msg.Value)
	if err != nil {
		s.log.Errorf("drop malformed message offset=%d key=%s: %v", msg.Offset, msg.Key, err)
		return true
	}
	for attempt := 0; ; attempt++ {
		err := h(ctx, evt)
		if err == nil {
			return true
		}
		if !errors.Is(err, ErrRedeliver) || attempt >= s.redeliveries {
			s.log.Warnf("handle event ref=%s: %v", evt.ReferenceID, err)
			return true
		}
		s.log.Infof("redelivering event ref=%s in %s: %v", evt.ReferenceID, s.delay, err)
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
