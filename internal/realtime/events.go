package realtime

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// ChangeEvent is one row-change notification for the tasks table. Record is
// the new row state (absent for deletes), OldRecord the prior state (absent
// for inserts).
//
// Resync marks a backend reconnect: notifications may have been lost and
// consumers should reload instead of trusting their view.
type ChangeEvent struct {
	Kind      Kind            `json:"type"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
	Resync    bool            `json:"-"`
}

// Data returns the row the event is about: the new state, or the prior one
// for deletes.
func (e ChangeEvent) Data() json.RawMessage {
	if !isNull(e.Record) {
		return e.Record
	}
	if !isNull(e.OldRecord) {
		return e.OldRecord
	}
	return nil
}

// RowID extracts the "id" column from Data, if present.
func (e ChangeEvent) RowID() string {
	data := e.Data()
	if data == nil {
		return ""
	}
	var row struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &row); err != nil {
		return ""
	}
	return row.ID
}

// ParseNotification decodes a tasks_notify_change() payload.
func ParseNotification(payload string) (ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return ChangeEvent{}, errors.Wrap(err, "decode notification")
	}
	switch e.Kind {
	case KindInsert, KindUpdate, KindDelete:
	default:
		return ChangeEvent{}, errors.Errorf("unknown change type %q", e.Kind)
	}
	return e, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
