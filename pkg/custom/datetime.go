package custom

import (
	"bytes"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Datetime represents an optional UTC timestamp. The zero value means "unset".
type Datetime time.Time

// NewDatetime wraps t, normalised to UTC.
func NewDatetime(t time.Time) Datetime {
	if t.IsZero() {
		return Datetime{}
	}
	return Datetime(t.UTC())
}

// FromUnixNano converts a persisted nanosecond timestamp. Zero means unset.
func FromUnixNano(ns int64) Datetime {
	if ns == 0 {
		return Datetime{}
	}
	return Datetime(time.Unix(0, ns).UTC())
}

// Time returns the underlying time.
func (d Datetime) Time() time.Time {
	return time.Time(d)
}

// IsZero reports whether the timestamp is unset.
func (d Datetime) IsZero() bool {
	return time.Time(d).IsZero()
}

// UnixNano returns the timestamp in nanoseconds, or zero when unset.
func (d Datetime) UnixNano() int64 {
	if d.IsZero() {
		return 0
	}
	return time.Time(d).UnixNano()
}

// MarshalJSON implements the json.Marshaler interface.
func (d Datetime) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf(`%q`, time.Time(d).UTC().Format(time.RFC3339Nano))), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *Datetime) UnmarshalJSON(text []byte) error {
	text = bytes.Trim(text, `"`)
	if len(text) == 0 || string(text) == "null" {
		*d = Datetime{}
		return nil
	}

	t, err := time.Parse(time.RFC3339Nano, string(text))
	if err != nil {
		return fmt.Errorf("invalid datetime %q: %w", text, err)
	}
	*d = NewDatetime(t)
	return nil
}

// MarshalBSONValue stores the timestamp as a BSON datetime, or null when unset.
func (d Datetime) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if d.IsZero() {
		return bson.TypeNull, nil, nil
	}
	return bson.MarshalValue(primitive.NewDateTimeFromTime(time.Time(d)))
}

// UnmarshalBSONValue accepts BSON datetimes and RFC3339 strings written by older builds.
func (d *Datetime) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}

	switch t {
	case bson.TypeNull, bson.TypeUndefined:
		*d = Datetime{}
		return nil
	case bson.TypeDateTime:
		*d = NewDatetime(raw.Time())
		return nil
	case bson.TypeString:
		parsed, err := time.Parse(time.RFC3339Nano, raw.StringValue())
		if err != nil {
			return fmt.Errorf("invalid datetime: %w", err)
		}
		*d = NewDatetime(parsed)
		return nil
	default:
		return fmt.Errorf("invalid datetime, bson type %s not supported", t)
	}
}

// String implements the fmt.Stringer interface.
func (d Datetime) String() string {
	if d.IsZero() {
		return ""
	}
	return time.Time(d).Format(time.RFC3339)
}
