package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/user/cortexdash/internal/types"
)

// DecodeRecord reads the record carried by a memory_created or
// memory_updated event.
func DecodeRecord(ev types.InboundEvent) (types.Record, error) {
	var r types.Record
	if len(ev.Data) == 0 {
		return r, fmt.Errorf("%s: empty payload", ev.EventType)
	}
	if err := json.Unmarshal(ev.Data, &r); err != nil {
		return r, fmt.Errorf("%s: decode record: %w", ev.EventType, err)
	}
	if r.ID == "" {
		return r, fmt.Errorf("%s: record has no id", ev.EventType)
	}
	return r, nil
}

// DecodeDeletedID reads the id carried by a memory_deleted event. The
// payload may be an object with an id field or a bare id string.
func DecodeDeletedID(ev types.InboundEvent) (types.RecordID, error) {
	var d types.DeletedData
	if err := json.Unmarshal(ev.Data, &d); err == nil && d.ID != "" {
		return d.ID, nil
	}
	var id string
	if err := json.Unmarshal(ev.Data, &id); err == nil && id != "" {
		return types.RecordID(id), nil
	}
	return "", fmt.Errorf("%s: payload has no id", ev.EventType)
}

// DecodeData unmarshals an event payload into v. A missing payload leaves v
// untouched.
func DecodeData(ev types.InboundEvent, v any) error {
	if len(ev.Data) == 0 || string(ev.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", ev.EventType, err)
	}
	return nil
}
