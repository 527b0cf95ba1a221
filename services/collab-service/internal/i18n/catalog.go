package i18n

// Display text for machine event codes and status tokens. Lookups fall back
// to the raw value so an unmapped code is still presentable.

var eventLabels = map[string]string{
	"request.created":  "New request",
	"request.updated":  "Request updated",
	"request.resolved": "Request resolved",
	"post.created":     "New post",
	"comment.created":  "New comment",
	"file.uploaded":    "File uploaded",
	"contract.sent":    "Contract sent",
	"contract.signed":  "Contract signed",
	"invoice.issued":   "Invoice issued",
	"invoice.paid":     "Invoice paid",
	"member.joined":    "Member joined",
}

var statusLabels = map[string]string{
	"pending":     "Pending",
	"in_progress": "In progress",
	"resolved":    "Resolved",
	"on_hold":     "On hold",
}

// EventLabel returns the display label for a machine event code.
func EventLabel(eventType string) string {
	if label, ok := eventLabels[eventType]; ok {
		return label
	}
	return eventType
}

// StatusLabel returns the display label for a status token.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// NotificationText returns localized title/message for an inbox entry.
// Producer-supplied text wins; the catalog fills gaps from the event code.
func NotificationText(eventType, title, message string) (string, string) {
	if title == "" {
		title = EventLabel(eventType)
	}
	if message == "" {
		message = EventLabel(eventType)
	}
	return title, message
}
