// Package notify renders customer status emails from static templates and sends them through a
// Mailer. Sends are synchronous and never retried.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"storefront-service/internal/apperr"
	"storefront-service/internal/metrics"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// OrderStatus carries what an order status email shows.
type OrderStatus struct {
	To                string
	CustomerName      string
	OrderNumber       string
	Status            string
	TrackingNumber    string
	EstimatedDelivery string
}

type BulkStatus struct {
	To             string
	ContactName    string
	CompanyName    string
	RequestID      string
	Status         string
	EstimatedPrice string
}

type Dispatcher struct {
	mailer     Mailer
	appBaseURL string
	adminEmail string
}

func NewDispatcher(m Mailer, appBaseURL, adminEmail string) *Dispatcher {
	return &Dispatcher{mailer: m, appBaseURL: strings.TrimRight(appBaseURL, "/"), adminEmail: adminEmail}
}

func (d *Dispatcher) TrackingURL() string {
	return d.appBaseURL + "/orders/track"
}

// RenderOrderStatus builds the plain-text email for an order status change.
func (d *Dispatcher) RenderOrderStatus(e OrderStatus) (Message, error) {
	to, err := checkAddress(e.To)
	if err != nil {
		return Message{}, err
	}
	if e.OrderNumber == "" {
		return Message{}, apperr.Validation("order number is required")
	}
	t, err := Lookup(KindOrder, e.Status)
	if err != nil {
		return Message{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", nameOr(e.CustomerName, "there"))
	fmt.Fprintf(&b, "%s %s\n\n", t.Emoji, t.Title)
	fmt.Fprintf(&b, "%s\n\n", t.Body)
	fmt.Fprintf(&b, "Order number: %s\n", e.OrderNumber)
	if e.TrackingNumber != "" {
		fmt.Fprintf(&b, "Tracking number: %s\n", e.TrackingNumber)
	}
	if e.EstimatedDelivery != "" {
		fmt.Fprintf(&b, "Estimated delivery: %s\n", e.EstimatedDelivery)
	}
	fmt.Fprintf(&b, "\n%s\n\n", t.NextSteps)
	fmt.Fprintf(&b, "Track your order: %s?orderNumber=%s\n\n", d.TrackingURL(), e.OrderNumber)
	b.WriteString("Thank you for shopping with us.\n")

	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s %s - %s", t.Emoji, t.Subject, e.OrderNumber),
		Body:    b.String(),
	}, nil
}

func (d *Dispatcher) RenderBulkStatus(e BulkStatus) (Message, error) {
	to, err := checkAddress(e.To)
	if err != nil {
		return Message{}, err
	}
	t, err := Lookup(KindBulk, e.Status)
	if err != nil {
		return Message{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", nameOr(e.ContactName, "there"))
	fmt.Fprintf(&b, "%s %s\n\n", t.Emoji, t.Title)
	fmt.Fprintf(&b, "%s\n\n", t.Body)
	if e.CompanyName != "" {
		fmt.Fprintf(&b, "Company: %s\n", e.CompanyName)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, "Request reference: %s\n", e.RequestID)
	}
	if e.EstimatedPrice != "" {
		fmt.Fprintf(&b, "Estimated price: %s\n", e.EstimatedPrice)
	}
	fmt.Fprintf(&b, "\n%s\n\n", t.NextSteps)
	b.WriteString("Thank you for considering us for your order.\n")

	return Message{To: to, Subject: t.Emoji + " " + t.Subject, Body: b.String()}, nil
}

// SendOrderStatus renders and sends one order status email.
func (d *Dispatcher) SendOrderStatus(ctx context.Context, e OrderStatus) error {
	msg, err := d.RenderOrderStatus(e)
	if err != nil {
		return err
	}
	return d.send(ctx, "order_"+strings.ToLower(e.Status), msg)
}

func (d *Dispatcher) SendBulkStatus(ctx context.Context, e BulkStatus) error {
	msg, err := d.RenderBulkStatus(e)
	if err != nil {
		return err
	}
	return d.send(ctx, "bulk_"+strings.ToLower(e.Status), msg)
}

// NotifyAdmin emails the back office. It does nothing when no admin address is configured.
func (d *Dispatcher) NotifyAdmin(ctx context.Context, subject, body string) error {
	if d.adminEmail == "" {
		return nil
	}
	return d.send(ctx, "admin", Message{To: d.adminEmail, Subject: subject, Body: body})
}

func (d *Dispatcher) send(ctx context.Context, template string, msg Message) error {
	traceId := ctxmanage.GetTraceId(ctx)
	if err := d.mailer.Send(ctx, msg); err != nil {
		metrics.EmailsTotal.WithLabelValues(template, "failed").Inc()
		slog.Error("sending email failed", slog.String(logkey.TraceID, traceId),
			slog.String("Template", template), slog.String(logkey.ERROR, err.Error()))
		if apperr.KindOf(err) == apperr.KindInternal {
			return apperr.Upstream(err, "failed to send email")
		}
		return err
	}
	metrics.EmailsTotal.WithLabelValues(template, "sent").Inc()
	slog.Info("email sent", slog.String(logkey.TraceID, traceId), slog.String("Template", template))
	return nil
}

// checkAddress returns the bare address in addr, dropping any display name.
func checkAddress(addr string) (string, error) {
	if addr == "" {
		return "", apperr.Validation("destination email is required")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", apperr.Validation("destination email %q is invalid", addr)
	}
	return parsed.Address, nil
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
