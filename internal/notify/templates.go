package notify

import (
	"strings"

	"storefront-service/internal/apperr"
)

// Kind separates the order and bulk request template sets; both have a "processing" status.
type Kind string

const (
	KindOrder Kind = "order"
	KindBulk  Kind = "bulk"
)

// StatusConfirmed is the template used when an order is placed.
const StatusConfirmed = "confirmed"

type Template struct {
	Subject   string
	Emoji     string
	Title     string
	Body      string
	NextSteps string
}

type templateKey struct {
	kind   Kind
	status string
}

var templates = map[templateKey]Template{
	{KindOrder, StatusConfirmed}: {
		Subject:   "Order Confirmed",
		Emoji:     "🎉",
		Title:     "Thank you for your order!",
		Body:      "We have received your order and it is now in our system.",
		NextSteps: "We will email you again as soon as your order is being prepared.",
	},
	{KindOrder, "processing"}: {
		Subject:   "Your Order is Being Processed",
		Emoji:     "⚙️",
		Title:     "Your order is being prepared",
		Body:      "Our team has started preparing your order for dispatch.",
		NextSteps: "You will receive a tracking number once your order ships.",
	},
	{KindOrder, "shipped"}: {
		Subject:   "Your Order Has Shipped",
		Emoji:     "🚚",
		Title:     "Your order is on its way",
		Body:      "Your order has been handed over to our delivery partner.",
		NextSteps: "Use the tracking number below to follow your package.",
	},
	{KindOrder, "delivered"}: {
		Subject:   "Your Order Has Been Delivered",
		Emoji:     "📦",
		Title:     "Your order has arrived",
		Body:      "Our records show that your order has been delivered.",
		NextSteps: "If anything is wrong with your order, reply to this email within 7 days.",
	},
	{KindOrder, "cancelled"}: {
		Subject:   "Your Order Has Been Cancelled",
		Emoji:     "❌",
		Title:     "Your order was cancelled",
		Body:      "Your order has been cancelled. Any online payment will be refunded to the original method.",
		NextSteps: "Refunds usually reach your account within 5 to 7 business days.",
	},

	{KindBulk, "received"}: {
		Subject:   "Bulk Order Request Received",
		Emoji:     "📨",
		Title:     "We have your bulk order request",
		Body:      "Thank you for your interest. Your request has been logged with our sales team.",
		NextSteps: "A member of our team will contact you within 2 business days.",
	},
	{KindBulk, "contacted"}: {
		Subject:   "We Are Reviewing Your Bulk Order",
		Emoji:     "📞",
		Title:     "Our team has reached out",
		Body:      "A sales representative has been assigned to your request.",
		NextSteps: "Please reply with any details that help us prepare a quote.",
	},
	{KindBulk, "processing"}: {
		Subject:   "Your Bulk Order is Being Processed",
		Emoji:     "⚙️",
		Title:     "Your bulk order is in progress",
		Body:      "We are preparing pricing and availability for your request.",
		NextSteps: "You will receive a confirmation with the final quote shortly.",
	},
	{KindBulk, "confirmed"}: {
		Subject:   "Your Bulk Order is Confirmed",
		Emoji:     "✅",
		Title:     "Your bulk order is confirmed",
		Body:      "Your bulk order has been confirmed and scheduled for production.",
		NextSteps: "We will share dispatch details once the order is ready.",
	},
	{KindBulk, "completed"}: {
		Subject:   "Your Bulk Order is Complete",
		Emoji:     "🎉",
		Title:     "Your bulk order is complete",
		Body:      "Your bulk order has been fulfilled. Thank you for your business.",
		NextSteps: "We would love to hear your feedback on the order.",
	},
	{KindBulk, "cancelled"}: {
		Subject:   "Your Bulk Order Request Was Cancelled",
		Emoji:     "❌",
		Title:     "Your bulk order request was cancelled",
		Body:      "Your bulk order request has been cancelled.",
		NextSteps: "Submit a new request at any time if your needs change.",
	},
}

// Lookup returns the template for status, or a validation error when there is none.
func Lookup(kind Kind, status string) (Template, error) {
	t, ok := templates[templateKey{kind, strings.ToLower(status)}]
	if !ok {
		return Template{}, apperr.Validation("no %s email template for status %q", kind, status)
	}
	return t, nil
}

func HasTemplate(kind Kind, status string) bool {
	_, ok := templates[templateKey{kind, strings.ToLower(status)}]
	return ok
}
