// Package kafka publishes order lifecycle records with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"storefront-service/internal/metrics"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/twmb/franz-go/pkg/kgo"
)

type Publisher interface {
	Publish(ctx context.Context, event, key string, payload any) error
}

type Conf struct {
	client *kgo.Client
	topic  string
}

// NewConf builds the producer client. opts are applied after the defaults.
func NewConf(brokers []string, topic string, opts ...kgo.Opt) (*Conf, error) {
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1 << 20),
		kgo.MaxBufferedRecords(10000),
		kgo.RecordDeliveryTimeout(30 * time.Second),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return &Conf{client: client, topic: topic}, nil
}

// Ping checks that at least one broker answers.
func (k *Conf) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

// ProduceMessage buffers one record and returns without waiting for the broker. done runs
// once the record is acknowledged or has failed, including when the buffer is full.
func (k *Conf) ProduceMessage(ctx context.Context, topic string, key, value []byte, done func(error), headers ...kgo.RecordHeader) {
	record := &kgo.Record{Topic: topic, Key: key, Value: value, Headers: headers}
	k.client.TryProduce(ctx, record, func(_ *kgo.Record, err error) {
		if done != nil {
			done(err)
		}
	})
}

// Publish wraps payload in an Envelope and hands it to the producer, keyed so that all records
// of one order land on the same partition. Delivery failures are logged and counted; they
// never reach the caller.
func (k *Conf) Publish(ctx context.Context, event, key string, payload any) error {
	value, err := Encode(ctx, event, payload, time.Now())
	if err != nil {
		return err
	}
	traceId := ctxmanage.GetTraceId(ctx)
	// the record outlives the request that produced it
	k.ProduceMessage(context.WithoutCancel(ctx), k.topic, []byte(key), value, func(err error) {
		if err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(event, "failed").Inc()
			slog.Error("event not delivered", slog.String(logkey.TraceID, traceId),
				slog.String("Event", event), slog.String("Key", key), slog.String(logkey.ERROR, err.Error()))
			return
		}
		metrics.EventsPublishedTotal.WithLabelValues(event, "delivered").Inc()
		slog.Info("event published", slog.String(logkey.TraceID, traceId),
			slog.String("Event", event), slog.String("Key", key))
	}, kgo.RecordHeader{Key: "event", Value: []byte(event)})
	return nil
}

// Close fails whatever is still buffered. Call Flush first to drain it.
func (k *Conf) Close() {
	k.client.Close()
}

// Flush waits for buffered records to be delivered or failed.
func (k *Conf) Flush(ctx context.Context) error {
	return k.client.Flush(ctx)
}

func Encode(ctx context.Context, event string, payload any, now time.Time) ([]byte, error) {
	value, err := json.Marshal(Envelope{
		Event:      event,
		TraceID:    ctxmanage.GetTraceId(ctx),
		OccurredAt: now.UTC(),
		Payload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", event, err)
	}
	return value, nil
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event, key string, _ any) error {
	slog.Debug("event publishing disabled", slog.String(logkey.TraceID, ctxmanage.GetTraceId(ctx)),
		slog.String("Event", event), slog.String("Key", key))
	return nil
}
