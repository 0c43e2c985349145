// Package events fans admin notifications out to connected back-office sessions.
// Delivery is best effort: there is no backlog, and a session only sees events broadcast while
// it is registered.
package events

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storefront-service/internal/metrics"
	"storefront-service/pkg/logkey"

	"github.com/google/uuid"
)

type Topic string

const (
	TopicOrders    Topic = "orders"
	TopicCustomers Topic = "customers"
	TopicPayments  Topic = "payments"
)

// Event types sent to admin sessions.
const (
	TypeConnected       = "connected"
	TypePing            = "ping"
	TypeNewOrder        = "new_order"
	TypeOrderUpdate     = "order_update"
	TypePaymentUpdate   = "payment_update"
	TypeCustomerUpdate  = "customer_update"
	TypeBulkOrderUpdate = "bulk_order_update"
)

var DefaultTopics = []Topic{TopicOrders, TopicCustomers, TopicPayments}

var topicOf = map[string]Topic{
	TypeNewOrder:        TopicOrders,
	TypeOrderUpdate:     TopicOrders,
	TypeBulkOrderUpdate: TopicOrders,
	TypePaymentUpdate:   TopicPayments,
	TypeCustomerUpdate:  TopicCustomers,
}

// TopicOf returns the subscription topic an event type is delivered under.
func TopicOf(eventType string) (Topic, bool) {
	t, ok := topicOf[eventType]
	return t, ok
}

type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives encoded events for one connection. A Send error drops the connection.
type Sink interface {
	Send(frame []byte) error
}

type connection struct {
	sink   Sink
	topics map[Topic]struct{}
}

// Broadcaster is the registry of admin connections. It is safe for concurrent use; Broadcast
// holds the registry lock while delivering so each connection sees events in call order.
type Broadcaster struct {
	mu    sync.Mutex
	conns map[string]*connection
	now   func() time.Time
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{conns: make(map[string]*connection), now: time.Now}
}

// AddConnection registers sink under a new random id, subscribed to topics (DefaultTopics when
// none are given).
func (b *Broadcaster) AddConnection(sink Sink, topics ...Topic) string {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	set := make(map[Topic]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	id := uuid.NewString()

	b.mu.Lock()
	b.conns[id] = &connection{sink: sink, topics: set}
	n := len(b.conns)
	b.mu.Unlock()

	metrics.SSEConnections.Set(float64(n))
	slog.Info("admin event connection added", slog.String("Connection ID", id), slog.Int("Connections", n))
	return id
}

func (b *Broadcaster) RemoveConnection(id string) {
	b.mu.Lock()
	c, ok := b.conns[id]
	if ok {
		delete(b.conns, id)
	}
	n := len(b.conns)
	b.mu.Unlock()

	if !ok {
		return
	}
	closeSink(c.sink)
	metrics.SSEConnections.Set(float64(n))
	slog.Info("admin event connection removed", slog.String("Connection ID", id), slog.Int("Connections", n))
}

func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Encode builds the wire form of an event.
func (b *Broadcaster) Encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data, Timestamp: b.now().UTC()})
}

// Broadcast delivers an event to every connection subscribed to the event type's topic.
// Event types without a topic go to every connection. It returns the number of connections
// that accepted the event.
func (b *Broadcaster) Broadcast(eventType string, data any) int {
	frame, err := b.Encode(eventType, data)
	if err != nil {
		slog.Error("encoding admin event failed", slog.String("Type", eventType), slog.String(logkey.ERROR, err.Error()))
		return 0
	}
	topic, scoped := TopicOf(eventType)

	b.mu.Lock()
	delivered := 0
	var dropped []Sink
	for id, c := range b.conns {
		if scoped {
			if _, ok := c.topics[topic]; !ok {
				continue
			}
		}
		if err := c.sink.Send(frame); err != nil {
			delete(b.conns, id)
			dropped = append(dropped, c.sink)
			slog.Warn("dropping admin event connection", slog.String("Connection ID", id), slog.String(logkey.ERROR, err.Error()))
			continue
		}
		delivered++
	}
	n := len(b.conns)
	b.mu.Unlock()

	for _, s := range dropped {
		closeSink(s)
	}
	if len(dropped) > 0 {
		metrics.SSEConnections.Set(float64(n))
	}
	metrics.BroadcastsTotal.WithLabelValues(eventType).Inc()
	return delivered
}

// Close drops every connection. Used at shutdown so open streams end.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[string]*connection)
	b.mu.Unlock()

	for _, c := range conns {
		closeSink(c.sink)
	}
	metrics.SSEConnections.Set(0)
}

func closeSink(s Sink) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
	}
}

var (
	ErrSlowConsumer = errors.New("event buffer full")
	ErrClosed       = errors.New("event stream closed")
)

// StreamSink buffers frames for a goroutine that writes them to a streaming response.
type StreamSink struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewStreamSink(buffer int) *StreamSink {
	return &StreamSink{frames: make(chan []byte, buffer), done: make(chan struct{})}
}

// Send never blocks; a full buffer is reported as ErrSlowConsumer.
func (s *StreamSink) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (s *StreamSink) Frames() <-chan []byte { return s.frames }

// Done is closed once the sink has been removed from the broadcaster.
func (s *StreamSink) Done() <-chan struct{} { return s.done }

func (s *StreamSink) Close() {
	s.once.Do(func() { close(s.done) })
}
