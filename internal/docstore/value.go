package docstore

import (
	"strconv"
	"time"

	"snapchart-proxy/internal/model"
)

// Value is the document store's tagged-value encoding. It exists only at
// this boundary; everything above it works with model.UserRecord.
type Value struct {
	StringValue    *string `json:"stringValue,omitempty"`
	IntegerValue   *string `json:"integerValue,omitempty"`
	TimestampValue *string `json:"timestampValue,omitempty"`
}

func stringValue(s string) Value {
	return Value{StringValue: &s}
}

func integerValue(i int) Value {
	// The wire format carries 64-bit integers as decimal strings.
	s := strconv.Itoa(i)
	return Value{IntegerValue: &s}
}

func timestampValue(t time.Time) Value {
	s := t.UTC().Format(time.RFC3339Nano)
	return Value{TimestampValue: &s}
}

func (v Value) asString() string {
	if v.StringValue == nil {
		return ""
	}
	return *v.StringValue
}

func (v Value) asInt() int {
	if v.IntegerValue == nil {
		return 0
	}
	i, err := strconv.Atoi(*v.IntegerValue)
	if err != nil {
		return 0
	}
	return i
}

func (v Value) asTime() time.Time {
	if v.TimestampValue == nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeUserRecord(rec model.UserRecord) map[string]Value {
	fields := map[string]Value{
		"analysesRemaining": integerValue(rec.AnalysesRemaining),
	}
	if rec.Email != "" {
		fields["email"] = stringValue(rec.Email)
	}
	if !rec.LastReset.IsZero() {
		fields["lastReset"] = timestampValue(rec.LastReset)
	}

	return fields
}

func decodeUserRecord(fields map[string]Value) model.UserRecord {
	return model.UserRecord{
		Email:             fields["email"].asString(),
		AnalysesRemaining: fields["analysesRemaining"].asInt(),
		LastReset:         fields["lastReset"].asTime(),
	}
}
