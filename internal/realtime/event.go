package realtime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	go_json "github.com/goccy/go-json"
)

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	default:
		return false
	}
}

// Event is one change to a row of a resource. Record holds the row after the
// change; OldRecord holds it before (deletes carry only OldRecord).
type Event struct {
	Type            EventType          `json:"type"`
	Namespace       string             `json:"schema"`
	Resource        string             `json:"table"`
	Record          go_json.RawMessage `json:"record,omitempty"`
	OldRecord       go_json.RawMessage `json:"old_record,omitempty"`
	CommitTimestamp time.Time          `json:"commit_timestamp"`
}

var ErrEmptyRecord = errors.New("event carries no record")

// Decode unmarshals the row the event is about into v: the new row for creates
// and updates, the old row for deletes.
func (e Event) Decode(v any) error {
	data := e.Record
	if e.Type == EventDeleted || len(data) == 0 {
		data = e.OldRecord
	}
	if len(data) == 0 {
		return ErrEmptyRecord
	}
	if err := go_json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", e.Type, err)
	}
	return nil
}

// Topic is the feed topic the event is published on.
func (e Event) Topic() string {
	return Key{Namespace: e.Namespace, Resource: e.Resource}.Topic()
}

// NewEvent marshals the given rows into an Event. Either row may be nil.
func NewEvent(t EventType, namespace, resource string, record, oldRecord any) (Event, error) {
	ev := Event{
		Type:            t,
		Namespace:       namespaceOrDefault(namespace),
		Resource:        resource,
		CommitTimestamp: time.Now().UTC(),
	}
	if record != nil {
		data, err := go_json.Marshal(record)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal record: %w", err)
		}
		ev.Record = data
	}
	if oldRecord != nil {
		data, err := go_json.Marshal(oldRecord)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal old record: %w", err)
		}
		ev.OldRecord = data
	}
	return ev, nil
}

// EventMask selects which change types a listener receives. The zero mask
// selects every type.
type EventMask uint8

const (
	MaskCreated EventMask = 1 << iota
	MaskUpdated
	MaskDeleted

	MaskAny = MaskCreated | MaskUpdated | MaskDeleted
)

func MaskOf(t EventType) EventMask {
	switch t {
	case EventCreated:
		return MaskCreated
	case EventUpdated:
		return MaskUpdated
	case EventDeleted:
		return MaskDeleted
	default:
		return 0
	}
}

func (m EventMask) Has(t EventType) bool {
	if m == 0 {
		return t.Valid()
	}
	return m&MaskOf(t) != 0
}

func (m EventMask) String() string {
	if m == 0 || m == MaskAny {
		return "*"
	}
	var parts []string
	for _, t := range []EventType{EventCreated, EventUpdated, EventDeleted} {
		if m&MaskOf(t) != 0 {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ",")
}

// ParseEventMask parses "*", "" or a comma separated list of event types.
func ParseEventMask(s string) (EventMask, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return MaskAny, nil
	}
	var m EventMask
	for part := range strings.SplitSeq(s, ",") {
		t := EventType(strings.TrimSpace(part))
		if !t.Valid() {
			return 0, fmt.Errorf("unknown event type: %q", part)
		}
		m |= MaskOf(t)
	}
	return m, nil
}
