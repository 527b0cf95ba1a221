package i18n

import "testing"

func TestEventLabelKnownCode(t *testing.T) {
	if got := EventLabel("request.created"); got != "New request" {
		t.Fatalf("expected mapped label, got %q", got)
	}
}

func TestEventLabelFallsBackToRawCode(t *testing.T) {
	if got := EventLabel("totally.unknown"); got != "totally.unknown" {
		t.Fatalf("expected raw code fallback, got %q", got)
	}
}

func TestStatusLabel(t *testing.T) {
	if got := StatusLabel("in_progress"); got != "In progress" {
		t.Fatalf("expected mapped status, got %q", got)
	}
	if got := StatusLabel("weird_status"); got != "weird_status" {
		t.Fatalf("expected raw status fallback, got %q", got)
	}
}

func TestNotificationTextPrefersProducerText(t *testing.T) {
	title, message := NotificationText("request.created", "Custom title", "Custom body")
	if title != "Custom title" || message != "Custom body" {
		t.Fatalf("expected producer text kept, got %q / %q", title, message)
	}
}

func TestNotificationTextFillsGaps(t *testing.T) {
	title, message := NotificationText("invoice.paid", "", "")
	if title != "Invoice paid" || message != "Invoice paid" {
		t.Fatalf("expected catalog fallback, got %q / %q", title, message)
	}
}
