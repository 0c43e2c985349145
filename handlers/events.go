package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/events"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

const sseBuffer = 64

// parseTopics reads a comma separated topics query value. Empty means every topic.
func parseTopics(v string) ([]events.Topic, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var topics []events.Topic
	for _, part := range strings.Split(v, ",") {
		t := events.Topic(strings.TrimSpace(part))
		switch t {
		case events.TopicOrders, events.TopicCustomers, events.TopicPayments:
			topics = append(topics, t)
		default:
			return nil, apperr.Validation("unknown topic %q", part)
		}
	}
	return topics, nil
}

// AdminEvents streams admin notifications as server-sent events until the client goes away
// or the connection is dropped by the broadcaster.
func (h *Handler) AdminEvents(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	topics, err := parseTopics(c.Query("topics"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.respondError(c, fmt.Errorf("response writer does not support streaming"))
		return
	}

	sink := events.NewStreamSink(sseBuffer)
	id := h.ev.AddConnection(sink, topics...)
	defer h.ev.RemoveConnection(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	write := func(frame []byte) bool {
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", frame); err != nil {
			slog.Info("admin event stream write failed", slog.String(logkey.TraceID, traceId),
				slog.String("Connection ID", id), slog.String(logkey.ERROR, err.Error()))
			return false
		}
		flusher.Flush()
		return true
	}

	hello, err := json.Marshal(gin.H{"type": events.TypeConnected, "connectionId": id, "timestamp": time.Now().UTC()})
	if err != nil || !write(hello) {
		return
	}
	slog.Info("admin event stream opened", slog.String(logkey.TraceID, traceId), slog.String("Connection ID", id))

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Info("admin event stream closed by client", slog.String(logkey.TraceID, traceId), slog.String("Connection ID", id))
			return
		case <-sink.Done():
			return
		case frame := <-sink.Frames():
			if !write(frame) {
				return
			}
		case <-ticker.C:
			ping, err := h.ev.Encode(events.TypePing, nil)
			if err != nil || !write(ping) {
				return
			}
		}
	}
}
