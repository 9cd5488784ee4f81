package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Channel event names.
const (
	EventOrderDispatched    = "order_dispatched"
	EventOrderStatusChanged = "order_status_changed"
)

// DispatchEvent is the message announcing a committed order to the kitchen.
type DispatchEvent struct {
	Event      string    `json:"event"`
	Order      Order     `json:"order"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewDispatchEvent wraps a committed order snapshot.
func NewDispatchEvent(o Order, at time.Time) DispatchEvent {
	return DispatchEvent{Event: EventOrderDispatched, Order: o, OccurredAt: at}
}

// OptionalString distinguishes an absent field from an explicit null.
// Set is false when the key was missing; Set with a nil Value clears the field.
type OptionalString struct {
	Set   bool
	Value *string
}

// SomeString returns a present, non-null value.
func SomeString(s string) OptionalString {
	return OptionalString{Set: true, Value: &s}
}

// NullString returns a present null, i.e. an explicit clear.
func NullString() OptionalString {
	return OptionalString{Set: true}
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// StatusChangeEvent is an inbound update produced by the kitchen.
type StatusChangeEvent struct {
	ID         string         `json:"id"`
	StatusID   int            `json:"statusId"`
	RecipeName OptionalString `json:"recipeName,omitzero"`
}

// StatusUpdate is a targeted store update derived from a StatusChangeEvent.
// Only fields that are present are written.
type StatusUpdate struct {
	OrderID    string
	StatusID   int
	RecipeName OptionalString
	UpdatedAt  time.Time
}

// DecodeStatusChanges accepts a single event object or an array of them.
// snake_case keys are normalised to their camelCase form; when both spellings
// are present the camelCase one wins.
func DecodeStatusChanges(raw []byte) ([]StatusChangeEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrValidation)
	}

	var items []map[string]json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	} else {
		var one map[string]json.RawMessage
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		items = append(items, one)
	}

	events := make([]StatusChangeEvent, 0, len(items))
	for i, item := range items {
		normalised := make(map[string]json.RawMessage, len(item))
		for k, v := range item {
			nk := toCamelCase(k)
			if nk != k {
				if _, ok := item[nk]; ok {
					continue
				}
				if _, ok := normalised[nk]; ok {
					return nil, fmt.Errorf("%w: event %d: duplicate key %s", ErrValidation, i, nk)
				}
			}
			normalised[nk] = v
		}
		b, err := json.Marshal(normalised)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrValidation, i, err)
		}
		var ev StatusChangeEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrValidation, i, err)
		}
		if ev.ID == "" {
			return nil, fmt.Errorf("%w: event %d: missing id", ErrValidation, i)
		}
		if ev.StatusID <= 0 {
			return nil, fmt.Errorf("%w: event %d: missing statusId", ErrValidation, i)
		}
		events = append(events, ev)
	}
	return events, nil
}

func toCamelCase(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	var b strings.Builder
	upper := false
	for _, r := range key {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
