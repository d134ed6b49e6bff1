package valuecodec

import (
	"bytes"
	"testing"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
	}{
		{"int64", int64(-42)},
		{"int64 zero", int64(0)},
		{"string", "hello world"},
		{"string empty", ""},
		{"bytes", []byte{0x00, 0xff, 0x10}},
		{"decimal", decimal.RequireFromString("123.456")},
		{"date", civil.Date{Year: 2026, Month: 8, Day: 1}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := Encode(c.in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			switch want := c.in.(type) {
			case []byte:
				gb, ok := got.([]byte)
				if !ok || !bytes.Equal(gb, want) {
					t.Fatalf("Decode = %#v, want %#v", got, want)
				}
			case decimal.Decimal:
				gd, ok := got.(decimal.Decimal)
				if !ok || !gd.Equal(want) {
					t.Fatalf("Decode = %#v, want %#v", got, want)
				}
			default:
				if got != c.in {
					t.Fatalf("Decode = %#v, want %#v", got, c.in)
				}
			}
		})
	}
}

func TestEncodeUnsupportedType(t *testing.T) {
	if _, err := Encode(3.14); err == nil {
		t.Fatal("Encode(float64) succeeded, want error")
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("Decode(nil) succeeded, want error")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode([]byte{0xff, 1, 2, 3}); err == nil {
		t.Fatal("Decode with unknown kind byte succeeded, want error")
	}
}

func TestDecodeTruncatedInt64(t *testing.T) {
	buf := []byte{byte(KindInt64), 1, 2, 3}
	if _, err := Decode(buf); err == nil {
		t.Fatal("Decode with short int64 payload succeeded, want error")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindInt64:   "int64",
		KindString:  "string",
		KindBytes:   "bytes",
		KindDecimal: "decimal",
		KindDate:    "date",
		Kind(99):    "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
