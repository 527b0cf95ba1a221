package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Row status values. A row is claimable only while pending; dead_letter rows
// are kept for inspection but never claimed again.
const (
	StatusPending    = "pending"
	StatusProcessed  = "processed"
	StatusDeadLetter = "dead_letter"
)

var ErrMalformedPayload = errors.New("malformed outbox payload")

// Event is what a business operation hands to the Producer. The envelope
// fields (Title, Message, ActorUserID, BusinessPayload) are serialized into
// the payload column together.
type Event struct {
	TenantID      string
	ActorUserID   string
	AggregateType string
	AggregateID   string
	EventType     string
	Title         string
	Message       string
	// BusinessPayload is the event-type-specific open map. For outward-facing
	// events it carries at least "project_id".
	BusinessPayload map[string]any
}

// Envelope is the decoded payload of a stored outbox row.
type Envelope struct {
	Title           string          `json:"title"`
	Message         string          `json:"message"`
	ActorUserID     string          `json:"actor_user_id"`
	BusinessPayload json.RawMessage `json:"business_payload,omitempty"`
}

// Record is an outbox row as claimed by the dispatcher.
type Record struct {
	ID          int64
	EventID     string
	TenantID    string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
	Attempts    int
	MaxAttempts int
}

// Decode parses the stored payload. A row that cannot be decoded is poisoned
// and handled by the dispatcher's retry/dead-letter path.
func (r Record) Decode() (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(r.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.ActorUserID == "" {
		return Envelope{}, fmt.Errorf("%w: missing actor_user_id", ErrMalformedPayload)
	}
	return env, nil
}

// ProjectID extracts the well-known project_id field from the business
// payload. Empty when absent or not a string; that is a policy outcome, not
// an error.
func (e Envelope) ProjectID() string {
	return e.businessString("project_id")
}

// Status extracts the well-known status token from the business payload,
// empty when absent.
func (e Envelope) Status() string {
	return e.businessString("status")
}

func (e Envelope) businessString(key string) string {
	if len(e.BusinessPayload) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(e.BusinessPayload, &fields); err != nil {
		return ""
	}
	v, _ := fields[key].(string)
	return v
}
