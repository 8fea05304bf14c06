package dashboard

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Jakarta is the fixed UTC+7 zone every calendar-day computation uses.
var Jakarta = time.FixedZone("WIB", 7*60*60)

// TimestampKind tags which stored representation a timestamp came from.
type TimestampKind int

const (
	KindSkip TimestampKind = iota
	KindNative
	KindBSONDateTime
	KindBSONTimestamp
	KindISOString
	KindEpochMillis
	KindSecondsNanos
	KindUnderscoreSecondsNanos
)

func (k TimestampKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindBSONDateTime:
		return "bson_datetime"
	case KindBSONTimestamp:
		return "bson_timestamp"
	case KindISOString:
		return "iso_string"
	case KindEpochMillis:
		return "epoch_millis"
	case KindSecondsNanos:
		return "seconds_nanoseconds"
	case KindUnderscoreSecondsNanos:
		return "_seconds_nanoseconds"
	default:
		return "skip"
	}
}

type Timestamp struct {
	Kind TimestampKind
	Time time.Time
}

func (t Timestamp) OK() bool {
	return t.Kind != KindSkip
}

var skip = Timestamp{Kind: KindSkip}

// ParseTimestamp never fails: values it cannot read come back as KindSkip.
func ParseTimestamp(v any) Timestamp {
	switch t := v.(type) {
	case time.Time:
		return parseNative(t)
	case *time.Time:
		if t == nil {
			return skip
		}
		return parseNative(*t)
	case primitive.DateTime:
		return Timestamp{Kind: KindBSONDateTime, Time: t.Time()}
	case primitive.Timestamp:
		return parseBSONTimestamp(t)
	case string:
		return parseISO(t)
	case int:
		return parseEpochMillis(float64(t))
	case int32:
		return parseEpochMillis(float64(t))
	case int64:
		return parseEpochMillis(float64(t))
	case float64:
		return parseEpochMillis(t)
	case bson.M:
		return parseFields(t)
	case map[string]any:
		return parseFields(t)
	case bson.D:
		return parseFields(t.Map())
	default:
		return skip
	}
}

func parseNative(t time.Time) Timestamp {
	if t.IsZero() {
		return skip
	}
	return Timestamp{Kind: KindNative, Time: t}
}

func parseBSONTimestamp(t primitive.Timestamp) Timestamp {
	if t.T == 0 {
		return skip
	}
	return Timestamp{Kind: KindBSONTimestamp, Time: time.Unix(int64(t.T), 0)}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func parseISO(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return skip
	}
	// strings without an offset, bare dates included, are newsroom wall-clock time
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, Jakarta); err == nil {
			return Timestamp{Kind: KindISOString, Time: t}
		}
	}
	return skip
}

func parseEpochMillis(ms float64) Timestamp {
	if ms <= 0 {
		return skip
	}
	return Timestamp{Kind: KindEpochMillis, Time: time.UnixMilli(int64(ms))}
}

func parseFields(m map[string]any) Timestamp {
	if secs, ok := numeric(m["seconds"]); ok {
		nanos, _ := numeric(m["nanoseconds"])
		return Timestamp{Kind: KindSecondsNanos, Time: time.Unix(secs, nanos)}
	}
	if secs, ok := numeric(m["_seconds"]); ok {
		nanos, _ := numeric(m["_nanoseconds"])
		return Timestamp{Kind: KindUnderscoreSecondsNanos, Time: time.Unix(secs, nanos)}
	}
	return skip
}

func numeric(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
