// Package valuecodec flattens typed values into the raw bytes an op's
// value buffer carries and back, the way pkg/tds/types.go flattens typed
// SQL values for wire encoding — generalized here to a closed set of
// value kinds rather than the full TDS type catalog.
package valuecodec

import (
	"encoding/binary"
	"fmt"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// Kind tags which Go type a raw value buffer decodes to.
type Kind uint8

const (
	KindInt64 Kind = iota
	KindString
	KindBytes
	KindDecimal
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Encode flattens v into a tagged byte buffer: one Kind byte followed by
// the kind-specific payload. Supported Go types: int64, string, []byte,
// decimal.Decimal, civil.Date.
func Encode(v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case int64:
		buf := make([]byte, 9)
		buf[0] = byte(KindInt64)
		binary.BigEndian.PutUint64(buf[1:], uint64(x))
		return buf, nil

	case string:
		buf := make([]byte, 1+len(x))
		buf[0] = byte(KindString)
		copy(buf[1:], x)
		return buf, nil

	case []byte:
		buf := make([]byte, 1+len(x))
		buf[0] = byte(KindBytes)
		copy(buf[1:], x)
		return buf, nil

	case decimal.Decimal:
		s := x.String()
		buf := make([]byte, 1+len(s))
		buf[0] = byte(KindDecimal)
		copy(buf[1:], s)
		return buf, nil

	case civil.Date:
		s := x.String()
		buf := make([]byte, 1+len(s))
		buf[0] = byte(KindDate)
		copy(buf[1:], s)
		return buf, nil

	default:
		return nil, fmt.Errorf("valuecodec: unsupported value type %T", v)
	}
}

// Decode reads back the value Encode produced, returning it as an
// interface{} holding the original Go type.
func Decode(buf []byte) (interface{}, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("valuecodec: empty buffer")
	}

	kind := Kind(buf[0])
	payload := buf[1:]

	switch kind {
	case KindInt64:
		if len(payload) != 8 {
			return nil, fmt.Errorf("valuecodec: int64 payload has %d bytes, want 8", len(payload))
		}
		return int64(binary.BigEndian.Uint64(payload)), nil

	case KindString:
		return string(payload), nil

	case KindBytes:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil

	case KindDecimal:
		d, err := decimal.NewFromString(string(payload))
		if err != nil {
			return nil, fmt.Errorf("valuecodec: decode decimal: %w", err)
		}
		return d, nil

	case KindDate:
		d, err := civil.ParseDate(string(payload))
		if err != nil {
			return nil, fmt.Errorf("valuecodec: decode date: %w", err)
		}
		return d, nil

	default:
		return nil, fmt.Errorf("valuecodec: unknown kind byte %d", buf[0])
	}
}
