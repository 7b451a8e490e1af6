package store

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var timeType = reflect.TypeOf(time.Time{})

// instantLayouts are the string encodings older clients wrote for
// start_time/end_time.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Registry returns a BSON registry whose time.Time decoder accepts every
// instant encoding found in the events collection and normalizes to UTC.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeDecoder(timeType, bsoncodec.ValueDecoderFunc(decodeInstant))
	return reg
}

func decodeInstant(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != timeType {
		return bsoncodec.ValueDecoderError{Name: "InstantDecodeValue", Types: []reflect.Type{timeType}, Received: val}
	}

	var t time.Time
	switch vr.Type() {
	case bsontype.DateTime:
		ms, err := vr.ReadDateTime()
		if err != nil {
			return err
		}
		t = time.UnixMilli(ms)
	case bsontype.Timestamp:
		sec, _, err := vr.ReadTimestamp()
		if err != nil {
			return err
		}
		t = time.Unix(int64(sec), 0)
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		parsed, err := ParseInstant(s)
		if err != nil {
			return err
		}
		t = parsed
	case bsontype.Int64:
		ms, err := vr.ReadInt64()
		if err != nil {
			return err
		}
		t = time.UnixMilli(ms)
	case bsontype.Int32:
		ms, err := vr.ReadInt32()
		if err != nil {
			return err
		}
		t = time.UnixMilli(int64(ms))
	case bsontype.Double:
		f, err := vr.ReadDouble()
		if err != nil {
			return err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("invalid instant %v", f)
		}
		t = time.UnixMilli(int64(f))
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
	case bsontype.Undefined:
		if err := vr.ReadUndefined(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cannot decode %v into an instant", vr.Type())
	}

	if !t.IsZero() {
		t = t.UTC()
	}
	val.Set(reflect.ValueOf(t))
	return nil
}

// ParseInstant parses the string encodings accepted for event times.
// Layouts without a zone are read as UTC.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid instant %q, use RFC3339 or YYYY-MM-DD", s)
}
