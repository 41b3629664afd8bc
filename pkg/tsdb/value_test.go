package tsdb

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func decodeOne(t *testing.T, formatID byte, payload []byte) Value {
	t.Helper()
	r := byteReader{data: payload}
	v, err := decodeValue(&r, formatID)
	if err != nil {
		t.Fatalf("decode format 0x%02x: %v", formatID, err)
	}
	if r.remaining() != 0 {
		t.Fatalf("decode format 0x%02x left %d bytes", formatID, r.remaining())
	}
	return v
}

func TestValueRoundTripNumericFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		formatID byte
		in       Value
		want     Value
	}{
		{0x10, IntValue(-5), IntValue(-5)},
		{0x11, Float64Value(-1.3), Float64Value(-1.3)},
		{0x22, Float64Value(23.45), Float64Value(23.45)},
		{0x20, IntValue(-30000), IntValue(-30000)},
		{0x30, IntValue(-8_388_608), IntValue(-8_388_608)},
		{0x33, Float64Value(-1234.567), Float64Value(-1234.567)},
		{0x40, IntValue(-2_000_000_000), IntValue(-2_000_000_000)},
		{0x53, Float64Value(99999.125), Float64Value(99999.125)},
		{0x90, IntValue(250), IntValue(250)},
		{0xa1, Float64Value(6553.5), Float64Value(6553.5)},
		{0xb0, IntValue(16_000_000), IntValue(16_000_000)},
		{0xc2, Float64Value(42949672.95), Float64Value(42949672.95)},
		{0xd0, IntValue(1 << 40), IntValue(1 << 40)},
	}
	for _, tc := range cases {
		payload, err := EncodeValue(nil, tc.formatID, tc.in)
		if err != nil {
			t.Fatalf("encode 0x%02x: %v", tc.formatID, err)
		}
		got := decodeOne(t, tc.formatID, payload)
		if got.Kind != tc.want.Kind {
			t.Fatalf("format 0x%02x: kind %d, want %d", tc.formatID, got.Kind, tc.want.Kind)
		}
		switch got.Kind {
		case KindInt:
			if got.Int != tc.want.Int {
				t.Fatalf("format 0x%02x: %d, want %d", tc.formatID, got.Int, tc.want.Int)
			}
		case KindFloat:
			if !equal6(got.Float, tc.want.Float) {
				t.Fatalf("format 0x%02x: %v, want %v", tc.formatID, got.Float, tc.want.Float)
			}
		}
	}
}

func TestValueScaledInt16(t *testing.T) {
	t.Parallel()

	// int16 with divisor 100: 2345 on disk means 23.45.
	payload, err := EncodeValue(nil, 0x22, Float64Value(23.45))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(payload, []byte{0x29, 0x09}) {
		t.Fatalf("payload %x, want 2909", payload)
	}
	got := decodeOne(t, 0x22, payload)
	if got.Float != 23.45 {
		t.Fatalf("decoded %v, want 23.45", got.Float)
	}
}

func TestValueInt24SignExtension(t *testing.T) {
	t.Parallel()

	got := decodeOne(t, 0x30, []byte{0xff, 0xff, 0xff})
	if got.Kind != KindInt || got.Int != -1 {
		t.Fatalf("decoded %+v, want int -1", got)
	}
	got = decodeOne(t, 0xb0, []byte{0xff, 0xff, 0xff})
	if got.Kind != KindInt || got.Int != 0xffffff {
		t.Fatalf("decoded %+v, want int 16777215", got)
	}
}

func TestValueFloatAndDouble(t *testing.T) {
	t.Parallel()

	payload, err := EncodeValue(nil, FormatFloat, Float64Value(1.5))
	if err != nil {
		t.Fatalf("encode float: %v", err)
	}
	if got := decodeOne(t, FormatFloat, payload); got.Float != 1.5 {
		t.Fatalf("float decoded %v", got.Float)
	}

	payload, err = EncodeValue(nil, FormatDoubleDec2, Float64Value(math.Pi))
	if err != nil {
		t.Fatalf("encode double: %v", err)
	}
	if got := decodeOne(t, FormatDoubleDec2, payload); got.Float != math.Pi {
		t.Fatalf("double not bit-exact: %v", got.Float)
	}

	// A float32 that loses precision within six decimals is rejected.
	if _, err := EncodeValue(nil, FormatFloat, Float64Value(123456.789)); err == nil {
		t.Fatalf("expected precision error for float32")
	}
}

func TestValueStrings(t *testing.T) {
	t.Parallel()

	for _, formatID := range []byte{FormatStringU8, FormatStringU16, FormatStringU32, FormatStringU64} {
		payload, err := EncodeValue(nil, formatID, StringValue("héllo"))
		if err != nil {
			t.Fatalf("encode string 0x%02x: %v", formatID, err)
		}
		got := decodeOne(t, formatID, payload)
		if got.Kind != KindString || got.Str != "héllo" {
			t.Fatalf("decoded %+v", got)
		}
	}

	// Length prefix pointing past the available bytes.
	r := byteReader{data: []byte{0x10, 'a', 'b'}}
	if _, err := decodeValue(&r, FormatStringU8); !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("err = %v, want ErrStringTooLong", err)
	}
}

func TestValueEncodeRejections(t *testing.T) {
	t.Parallel()

	if _, err := EncodeValue(nil, 0x77, Float64Value(1)); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
	if _, err := EncodeValue(nil, 0x10, Float64Value(1000)); !errors.Is(err, ErrUnrepresentable) {
		t.Fatalf("int8 overflow err = %v", err)
	}
	if _, err := EncodeValue(nil, 0x90, Float64Value(-1)); !errors.Is(err, ErrUnrepresentable) {
		t.Fatalf("uint8 negative err = %v", err)
	}
	if _, err := EncodeValue(nil, 0x21, Float64Value(1.33)); !errors.Is(err, ErrUnrepresentable) {
		t.Fatalf("precision loss err = %v", err)
	}
	if _, err := EncodeValue(nil, FormatDouble, StringValue("x")); !errors.Is(err, ErrUnrepresentable) {
		t.Fatalf("string in double err = %v", err)
	}
	if _, err := EncodeValue(nil, FormatStringU8, Float64Value(1)); !errors.Is(err, ErrUnrepresentable) {
		t.Fatalf("number in string err = %v", err)
	}
	if _, err := EncodeValue(nil, FormatDouble, Float64Value(math.Inf(1))); !errors.Is(err, ErrUnrepresentable) {
		t.Fatalf("inf err = %v", err)
	}
}

func TestDecimalPlaces(t *testing.T) {
	t.Parallel()

	cases := map[byte]int{
		FormatFloat:          3,
		FormatDouble:         0,
		FormatDoubleDec2:     2,
		FormatDoubleDec6Plus: 6,
		FormatStringU8:       0,
		0x22:                 2,
		0x50:                 0,
		0xd3:                 3,
	}
	for formatID, want := range cases {
		if got := DecimalPlaces(formatID); got != want {
			t.Fatalf("DecimalPlaces(0x%02x) = %d, want %d", formatID, got, want)
		}
	}
}

func TestBestFormat(t *testing.T) {
	t.Parallel()

	// Small unsigned integers fit uint8.
	formatID, err := BestFormat([]Value{IntValue(1), IntValue(200)})
	if err != nil || formatID != 0x90 {
		t.Fatalf("got 0x%02x, %v", formatID, err)
	}
	// Two decimals force a divisor of 100; magnitude picks the width.
	formatID, err = BestFormat([]Value{Float64Value(23.45), Float64Value(-1.2)})
	if err != nil || formatID != 0x22 {
		t.Fatalf("got 0x%02x, %v", formatID, err)
	}
	// Pi survives float32 to six decimals, so float beats double.
	formatID, err = BestFormat([]Value{Float64Value(math.Pi)})
	if err != nil || formatID != FormatFloat {
		t.Fatalf("got 0x%02x, %v", formatID, err)
	}
	// More precision at a larger magnitude forces a double.
	formatID, err = BestFormat([]Value{Float64Value(1234.5678901)})
	if err != nil || formatID != FormatDouble {
		t.Fatalf("got 0x%02x, %v", formatID, err)
	}
	// Strings choose the smallest length prefix.
	formatID, err = BestFormat([]Value{StringValue("on"), StringValue("off")})
	if err != nil || formatID != FormatStringU8 {
		t.Fatalf("got 0x%02x, %v", formatID, err)
	}
	if _, err := BestFormat([]Value{StringValue("x"), IntValue(1)}); err == nil {
		t.Fatalf("expected error for mixed series")
	}
}
