package tsdb

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// Kind discriminates the decoded value variants. Integer formats with no
// divisor decode as KindInt, except uint64 samples beyond the int64 range,
// which decode as KindFloat; every other numeric format decodes as
// KindFloat after applying the divisor.
type Kind uint8

const (
	KindFloat Kind = iota
	KindInt
	KindString
)

// Value is the tagged variant carried by value entries. The channel's
// format id fixes the variant for every sample of that channel.
type Value struct {
	Kind  Kind
	Float float64
	Int   int64
	Str   string
}

func Float64Value(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func IntValue(v int64) Value       { return Value{Kind: KindInt, Int: v} }
func StringValue(s string) Value   { return Value{Kind: KindString, Str: s} }

// Numeric returns the value as a float64 when it is not a string.
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.Float, true
	case KindInt:
		return float64(v.Int), true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.Str
	}
}

// MarshalJSON renders numbers as JSON numbers and strings as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindFloat:
		if math.IsInf(v.Float, 0) || math.IsNaN(v.Float) {
			return []byte("null"), nil
		}
		return strconv.AppendFloat(nil, v.Float, 'f', -1, 64), nil
	case KindInt:
		return strconv.AppendInt(nil, v.Int, 10), nil
	default:
		return strconv.AppendQuote(nil, v.Str), nil
	}
}

// UnmarshalJSON accepts a JSON number or string, mirroring MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("tsdb: empty value")
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	}
	if string(data) == "null" {
		*v = Float64Value(math.NaN())
		return nil
	}
	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*v = IntValue(n)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*v = Float64Value(f)
	return nil
}

// numericShape resolves an integer family format id into its on-disk width,
// signedness, and decimal divisor.
func numericShape(formatID byte) (width int, signed bool, scale int64, ok bool) {
	lo := formatID & 0x0f
	if lo > 3 {
		return 0, false, 0, false
	}
	switch formatID >> 4 {
	case 0x1:
		width, signed = 1, true
	case 0x2:
		width, signed = 2, true
	case 0x3:
		width, signed = 3, true
	case 0x4:
		width, signed = 4, true
	case 0x5:
		width, signed = 8, true
	case 0x9:
		width, signed = 1, false
	case 0xa:
		width, signed = 2, false
	case 0xb:
		width, signed = 3, false
	case 0xc:
		width, signed = 4, false
	case 0xd:
		width, signed = 8, false
	default:
		return 0, false, 0, false
	}
	scale = [4]int64{1, 10, 100, 1000}[lo]
	return width, signed, scale, true
}

func stringPrefixWidth(formatID byte) (int, bool) {
	switch formatID {
	case FormatStringU8:
		return 1, true
	case FormatStringU16:
		return 2, true
	case FormatStringU32:
		return 4, true
	case FormatStringU64:
		return 8, true
	}
	return 0, false
}

// DecimalPlaces reports the display hint a renderer should use for values
// of the given format: the explicit hint of the double family (0 for
// FormatDouble), the divisor exponent of the integer families, 0 for
// strings, and the rendering default of 3 for float and unknown format ids.
func DecimalPlaces(formatID byte) int {
	switch {
	case formatID == FormatFloat:
		return 3
	case formatID >= FormatDoubleDec1 && formatID <= FormatDoubleDec6Plus:
		return int(formatID) - 1
	case formatID == FormatDouble:
		return 0
	case formatID >= FormatStringU8 && formatID <= FormatStringU64:
		return 0
	}
	if _, _, _, ok := numericShape(formatID); ok {
		return int(formatID & 0x0f)
	}
	return 3
}

// DoubleFormatForDecimals maps a decimals hint onto the double family.
func DoubleFormatForDecimals(decimals int) byte {
	switch {
	case decimals <= 0:
		return FormatDouble
	case decimals >= 6:
		return FormatDoubleDec6Plus
	default:
		return FormatDouble + byte(decimals)
	}
}

// KnownFormat reports whether formatID names a defined layout.
func KnownFormat(formatID byte) bool {
	if formatID <= FormatStringU64 {
		return true
	}
	_, _, _, ok := numericShape(formatID)
	return ok
}

// decodeValue reads one value payload for the given format id.
func decodeValue(r *byteReader, formatID byte) (Value, error) {
	switch {
	case formatID == FormatFloat:
		f, err := r.f32("float value")
		if err != nil {
			return Value{}, err
		}
		return Float64Value(float64(f)), nil

	case formatID >= FormatDouble && formatID <= FormatDoubleDec6Plus:
		f, err := r.f64("double value")
		if err != nil {
			return Value{}, err
		}
		return Float64Value(f), nil

	case formatID >= FormatStringU8 && formatID <= FormatStringU64:
		width, _ := stringPrefixWidth(formatID)
		var n uint64
		var err error
		switch width {
		case 1:
			var b byte
			b, err = r.u8("string length")
			n = uint64(b)
		case 2:
			var v uint16
			v, err = r.u16("string length")
			n = uint64(v)
		case 4:
			var v uint32
			v, err = r.u32("string length")
			n = uint64(v)
		default:
			n, err = r.u64("string length")
		}
		if err != nil {
			return Value{}, err
		}
		if n > uint64(r.remaining()) {
			return Value{}, fmt.Errorf("%w: %d bytes", ErrStringTooLong, n)
		}
		raw, err := r.bytes(int(n), "string bytes")
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(raw)), nil
	}

	width, signed, scale, ok := numericShape(formatID)
	if !ok {
		return Value{}, fmt.Errorf("%w 0x%02x", ErrUnknownFormat, formatID)
	}
	raw, err := readScalar(r, width, signed)
	if err != nil {
		return Value{}, err
	}
	if !signed && width == 8 {
		u := uint64(raw)
		if scale == 1 {
			if u > math.MaxInt64 {
				// uint64 samples beyond int64 range surface as floats.
				return Float64Value(float64(u)), nil
			}
			return IntValue(raw), nil
		}
		return Float64Value(float64(u) / float64(scale)), nil
	}
	if scale == 1 {
		return IntValue(raw), nil
	}
	return Float64Value(float64(raw) / float64(scale)), nil
}

// readScalar reads a little-endian integer of the given width; raw is the
// two's-complement value for signed widths. For unsigned 8-byte reads the
// bit pattern is returned in raw and must be reinterpreted by the caller.
func readScalar(r *byteReader, width int, signed bool) (int64, error) {
	switch width {
	case 1:
		v, err := r.u8("int8/uint8")
		if err != nil {
			return 0, err
		}
		if signed {
			return int64(int8(v)), nil
		}
		return int64(v), nil
	case 2:
		v, err := r.u16("int16/uint16")
		if err != nil {
			return 0, err
		}
		if signed {
			return int64(int16(v)), nil
		}
		return int64(v), nil
	case 3:
		if signed {
			v, err := r.i24("int24")
			return int64(v), err
		}
		v, err := r.u24("uint24")
		return int64(v), err
	case 4:
		v, err := r.u32("int32/uint32")
		if err != nil {
			return 0, err
		}
		if signed {
			return int64(int32(v)), nil
		}
		return int64(v), nil
	default:
		v, err := r.u64("int64/uint64")
		return int64(v), err
	}
}

// EncodeValue appends the payload bytes for v in the given format. A value
// that cannot round-trip through the format (range overflow, precision loss
// past six decimal digits, wrong variant) fails with ErrUnrepresentable.
func EncodeValue(dst []byte, formatID byte, v Value) ([]byte, error) {
	switch {
	case formatID >= FormatDouble && formatID <= FormatDoubleDec6Plus:
		f, ok := v.Numeric()
		if !ok || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, encodeErr(formatID, v)
		}
		return appendF64(dst, f), nil

	case formatID == FormatFloat:
		f, ok := v.Numeric()
		if !ok || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, encodeErr(formatID, v)
		}
		if !equal6(f, float64(float32(f))) {
			return nil, encodeErr(formatID, v)
		}
		return appendF32(dst, float32(f)), nil

	case formatID >= FormatStringU8 && formatID <= FormatStringU64:
		if v.Kind != KindString || !utf8.ValidString(v.Str) {
			return nil, encodeErr(formatID, v)
		}
		width, _ := stringPrefixWidth(formatID)
		n := uint64(len(v.Str))
		if width < 8 && n > (uint64(1)<<(width*8))-1 {
			return nil, fmt.Errorf("%w: %d bytes", ErrStringTooLong, n)
		}
		switch width {
		case 1:
			dst = append(dst, byte(n))
		case 2:
			dst = appendU16(dst, uint16(n))
		case 4:
			dst = appendU32(dst, uint32(n))
		default:
			dst = appendU64(dst, n)
		}
		return append(dst, v.Str...), nil
	}

	width, signed, scale, ok := numericShape(formatID)
	if !ok {
		return nil, fmt.Errorf("%w 0x%02x", ErrUnknownFormat, formatID)
	}
	f, numeric := v.Numeric()
	if !numeric || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, encodeErr(formatID, v)
	}
	scaled := math.Round(f * float64(scale))
	lo, hi := scalarRange(width, signed)
	if scaled < lo || scaled > hi {
		return nil, encodeErr(formatID, v)
	}
	var bits uint64
	if !signed && width == 8 {
		u := uint64(scaled)
		if !equal6(f, float64(u)/float64(scale)) {
			return nil, encodeErr(formatID, v)
		}
		bits = u
	} else {
		n := int64(scaled)
		if !equal6(f, float64(n)/float64(scale)) {
			return nil, encodeErr(formatID, v)
		}
		bits = uint64(n)
	}
	switch width {
	case 1:
		return append(dst, byte(bits)), nil
	case 2:
		return appendU16(dst, uint16(bits)), nil
	case 3:
		return appendU24(dst, uint32(bits)&0xffffff), nil
	case 4:
		return appendU32(dst, uint32(bits)), nil
	default:
		return appendU64(dst, bits), nil
	}
}

func encodeErr(formatID byte, v Value) error {
	return fmt.Errorf("%w: %s in format 0x%02x", ErrUnrepresentable, v, formatID)
}

func scalarRange(width int, signed bool) (float64, float64) {
	bits := uint(width * 8)
	if signed {
		return -math.Ldexp(1, int(bits-1)), math.Ldexp(1, int(bits-1)) - 1
	}
	if bits == 64 {
		return 0, math.MaxUint64
	}
	return 0, math.Ldexp(1, int(bits)) - 1
}

// equal6 compares two floats rounded to six decimal digits, the precision
// contract of the narrow numeric formats.
func equal6(a, b float64) bool {
	return math.Round(a*1e6) == math.Round(b*1e6)
}

// bestFormatCandidates is ordered from narrowest to widest encoding so the
// first fitting candidate is the smallest one.
var bestFormatCandidates = []byte{
	0x90, 0x91, 0x92, 0x93,
	0x10, 0x11, 0x12, 0x13,
	0xa0, 0xa1, 0xa2, 0xa3,
	0x20, 0x21, 0x22, 0x23,
	0xb0, 0xb1, 0xb2, 0xb3,
	0x30, 0x31, 0x32, 0x33,
	0xc0, 0xc1, 0xc2, 0xc3,
	0x40, 0x41, 0x42, 0x43,
	FormatFloat,
	0xd0, 0xd1, 0xd2, 0xd3,
	0x50, 0x51, 0x52, 0x53,
	FormatDouble,
}

// BestFormat selects the narrowest format able to represent every value of
// a series exactly: the smallest string prefix for all-string series, the
// first fitting numeric candidate otherwise. Mixed series are an error.
func BestFormat(values []Value) (byte, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("tsdb: cannot select a format for an empty series")
	}

	allStrings := true
	for _, v := range values {
		if v.Kind != KindString {
			allStrings = false
			break
		}
	}
	if allStrings {
		maxLen := 0
		for _, v := range values {
			if len(v.Str) > maxLen {
				maxLen = len(v.Str)
			}
		}
		switch {
		case maxLen <= 0xff:
			return FormatStringU8, nil
		case maxLen <= 0xffff:
			return FormatStringU16, nil
		case maxLen <= 0xffffffff:
			return FormatStringU32, nil
		default:
			return FormatStringU64, nil
		}
	}

	for _, v := range values {
		if v.Kind == KindString {
			return 0, fmt.Errorf("tsdb: mixed string and numeric values in series")
		}
	}
	var scratch [8]byte
	for _, candidate := range bestFormatCandidates {
		fits := true
		for _, v := range values {
			if _, err := EncodeValue(scratch[:0], candidate, v); err != nil {
				fits = false
				break
			}
		}
		if fits {
			return candidate, nil
		}
	}
	return FormatDouble, nil
}
