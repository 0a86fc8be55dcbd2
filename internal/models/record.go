package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/niyaskv/offsync/internal/errors"
)

// Record is the envelope the engine reads off a remote document. Domain
// fields are never interpreted; Raw carries the document verbatim so it can
// be round-tripped without loss.
type Record struct {
	ID        string
	TenantID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Status is the optional authority-controlled status field, empty when
	// the document carries none.
	Status string
	Raw    json.RawMessage
}

// flexID accepts record identifiers serialized as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type recordEnvelope struct {
	ID        flexID `json:"id"`
	TenantID  flexID `json:"tenant_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Status    string `json:"status"`
}

// ParseRecord extracts the envelope fields from a raw remote document. The
// document itself is kept verbatim in Raw. Returns PAYLOAD_INVALID when the
// document is not an object or lacks an id.
func ParseRecord(raw json.RawMessage) (Record, error) {
	var env recordEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Record{}, errors.Wrap(errors.ErrPayloadInvalid, "unparsable remote document", err)
	}
	if env.ID == "" {
		return Record{}, errors.New(errors.ErrPayloadInvalid, "remote document missing id")
	}

	rec := Record{
		ID:       string(env.ID),
		TenantID: string(env.TenantID),
		Status:   env.Status,
		Raw:      raw,
	}
	rec.CreatedAt = parseTimestamp(env.CreatedAt)
	rec.UpdatedAt = parseTimestamp(env.UpdatedAt)
	return rec, nil
}

// parseTimestamp reads an ISO 8601 timestamp, tolerating the fraction-less
// and zone-less variants PostgREST emits. Zero time on failure.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	// Epoch seconds as a last resort.
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	return time.Time{}
}
