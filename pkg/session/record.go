package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// expirationLayout matches the ISO form browsers produce for Date values.
const expirationLayout = "2006-01-02T15:04:05.000Z"

// maxTimestampMillis is the largest representable date offset, in either direction.
const maxTimestampMillis = 8.64e15

type wireRecord struct {
	ExpirationDate *string         `json:"expirationDate"`
	Data           json.RawMessage `json:"data"`
}

type storedRecord struct {
	expirationDate *time.Time
	data           json.RawMessage
}

func encodeRecord(expirationDate *time.Time, data any) (string, error) {
	encodedData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnencodableData, err)
	}
	wire := wireRecord{Data: encodedData}
	if expirationDate != nil {
		formatted := expirationDate.UTC().Format(expirationLayout)
		wire.ExpirationDate = &formatted
	}
	encoded, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnencodableData, err)
	}
	return string(encoded), nil
}

// decodeRecord parses a stored record. An unparseable expirationDate is reported as
// ErrCorruptRecord rather than being read as "never expires".
func decodeRecord(raw string) (storedRecord, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		return storedRecord{}, ErrCorruptRecord
	}
	var wire wireRecord
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return storedRecord{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	record := storedRecord{data: wire.Data}
	if len(record.data) == 0 {
		record.data = json.RawMessage("null")
	}
	if wire.ExpirationDate != nil {
		expirationDate, err := parseExpirationString(*wire.ExpirationDate)
		if err != nil {
			return storedRecord{}, fmt.Errorf("%w: expirationDate %q", ErrCorruptRecord, *wire.ExpirationDate)
		}
		record.expirationDate = &expirationDate
	}
	return record, nil
}

// expired reports whether the record expired strictly before now. Expirations are stored at
// millisecond precision, so now is truncated to the same precision before comparing.
func (record storedRecord) expired(now time.Time) bool {
	return record.expirationDate != nil && record.expirationDate.Before(now.Truncate(time.Millisecond))
}

// parseExpiration coerces the accepted expiration inputs into an absolute time.
// Empty inputs (nil, zero numbers, empty strings, the zero time) mean "never expires".
func parseExpiration(value any) (*time.Time, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if typed.IsZero() {
			return nil, nil
		}
		return &typed, nil
	case *time.Time:
		if typed == nil || typed.IsZero() {
			return nil, nil
		}
		copied := *typed
		return &copied, nil
	case string:
		if typed == "" {
			return nil, nil
		}
		parsed, err := parseExpirationString(typed)
		if err != nil {
			return nil, fmt.Errorf("expiration %q is not a valid date: %w", typed, ErrInvalidExpiration)
		}
		return &parsed, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		millis := cast.ToFloat64(typed)
		if millis == 0 {
			return nil, nil
		}
		if math.IsNaN(millis) || math.Abs(millis) > maxTimestampMillis {
			return nil, fmt.Errorf("expiration %v is not a valid date: %w", typed, ErrInvalidExpiration)
		}
		parsed := time.UnixMilli(int64(millis))
		return &parsed, nil
	default:
		parsed, err := cast.ToTimeE(typed)
		if err != nil || parsed.IsZero() {
			return nil, fmt.Errorf("expiration %v is not a valid date: %w", typed, ErrInvalidExpiration)
		}
		return &parsed, nil
	}
}

var utcDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02",
}

var localDateLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-1-2",
	"2006/1/2",
	"1/2/2006",
}

func parseExpirationString(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range utcDateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, nil
		}
	}
	for _, layout := range localDateLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return parsed, nil
		}
	}
	parsed, err := cast.ToTimeE(trimmed)
	if err != nil {
		return time.Time{}, err
	}
	if parsed.IsZero() {
		return time.Time{}, fmt.Errorf("zero date %q", trimmed)
	}
	return parsed, nil
}
