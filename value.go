package fbbus

import (
	"encoding/binary"
	"math"
	"strings"
	"time"
)

// ValueKind tags the payload actually carried by a Value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
	ValueString
	ValueTime
	ValueButton
	ValueSwitch
)

// Value is the tagged union carried by registers and by write requests.
// Only the field matching Kind is meaningful; the zero Value is ValueNone.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
	Time  time.Time
}

// NoneValue is the absent value, used to clear an expected value.
func NoneValue() Value { return Value{Kind: ValueNone} }

func IntValue(v int64) Value       { return Value{Kind: ValueInt, Int: v} }
func FloatValue(v float64) Value   { return Value{Kind: ValueFloat, Float: v} }
func BoolValue(v bool) Value       { return Value{Kind: ValueBool, Bool: v} }
func StringValue(v string) Value   { return Value{Kind: ValueString, Str: v} }
func TimeValue(v time.Time) Value  { return Value{Kind: ValueTime, Time: v} }
func ButtonValue(code int64) Value { return Value{Kind: ValueButton, Int: code} }
func SwitchValue(code int64) Value { return Value{Kind: ValueSwitch, Int: code} }

// IsNone reports whether the value is the absent/cleared sentinel.
func (v Value) IsNone() bool { return v.Kind == ValueNone }

// Equal reports whether two values carry the same kind and payload. Used by
// the registry's set_actual_value to decide whether an expected value has
// been satisfied.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueNone:
		return true
	case ValueInt, ValueButton, ValueSwitch:
		return v.Int == o.Int
	case ValueFloat:
		return v.Float == o.Float
	case ValueBool:
		return v.Bool == o.Bool
	case ValueString:
		return v.Str == o.Str
	case ValueTime:
		return v.Time.Equal(o.Time)
	}
	return false
}

// compatible reports whether a Value's kind is admissible for the given
// register data type. The frame builder consults this before attempting to
// encode, so a type mismatch fails with a BuildError rather than silently
// coercing or truncating.
func compatible(dt DataType, v Value) bool {
	switch {
	case dt.IsNumeric():
		return v.Kind == ValueInt || v.Kind == ValueFloat
	case dt == DataTypeBoolean:
		return v.Kind == ValueBool
	case dt == DataTypeEnum:
		return v.Kind == ValueInt
	case dt == DataTypeButton:
		return v.Kind == ValueButton
	case dt == DataTypeSwitch:
		return v.Kind == ValueSwitch
	case dt.IsText():
		return v.Kind == ValueString || v.Kind == ValueTime
	}
	return false
}

// textTerminator is the reserved byte ("space") that may terminate a text
// field in place of an explicit length prefix being fully consumed.
const textTerminator = 0x20

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05Z0700"
	dateTimeLayout = "2006-01-02T15:04:05Z0700"
)

func layoutFor(dt DataType) string {
	switch dt {
	case DataTypeDate:
		return dateLayout
	case DataTypeTime:
		return timeLayout
	case DataTypeDateTime:
		return dateTimeLayout
	}
	return ""
}

// EncodeValue packs v into its little-endian wire representation for the
// given data type. It returns ok=false — never an error — when the value's
// kind doesn't fit the data type or a text value can't be rendered; callers
// (the frame builder) turn that into an explicit BuildError.
func EncodeValue(dt DataType, v Value) (data []byte, ok bool) {
	if !compatible(dt, v) {
		return nil, false
	}
	switch {
	case dt.IsNumeric():
		return encodeNumeric(dt, v)
	case dt == DataTypeBoolean:
		buf := make([]byte, 4)
		if v.Bool {
			binary.LittleEndian.PutUint32(buf, 0xFF00)
		} else {
			binary.LittleEndian.PutUint32(buf, 0x0000)
		}
		return buf, true
	case dt == DataTypeEnum, dt == DataTypeButton, dt == DataTypeSwitch:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v.Int))
		return buf, true
	case dt.IsText():
		var s string
		if v.Kind == ValueTime {
			layout := layoutFor(dt)
			if layout == "" {
				return nil, false
			}
			s = v.Time.Format(layout)
		} else {
			s = v.Str
		}
		if len(s) > 255 {
			return nil, false
		}
		buf := make([]byte, 1+len(s))
		buf[0] = byte(len(s))
		copy(buf[1:], s)
		return buf, true
	}
	return nil, false
}

// encodeNumeric always produces a 4-byte little-endian slot, regardless of
// the data type's declared storage width (UCHAR/USHORT included) — every
// scalar register value rides in a flat 4-byte slot on the wire, the
// declared width only describes how the device stores it internally.
func encodeNumeric(dt DataType, v Value) ([]byte, bool) {
	buf := make([]byte, 4)
	if dt == DataTypeFloat {
		var f float64
		switch v.Kind {
		case ValueFloat:
			f = v.Float
		case ValueInt:
			f = float64(v.Int)
		default:
			return nil, false
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, true
	}

	var i int64
	switch v.Kind {
	case ValueInt:
		i = v.Int
	case ValueFloat:
		i = int64(v.Float)
	default:
		return nil, false
	}
	switch dt {
	case DataTypeChar:
		if i < math.MinInt8 || i > math.MaxInt8 {
			return nil, false
		}
	case DataTypeUChar:
		if i < 0 || i > math.MaxUint8 {
			return nil, false
		}
	case DataTypeShort:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return nil, false
		}
	case DataTypeUShort:
		if i < 0 || i > math.MaxUint16 {
			return nil, false
		}
	case DataTypeInt:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, false
		}
	case DataTypeUInt:
		if i < 0 || i > math.MaxUint32 {
			return nil, false
		}
	default:
		return nil, false
	}
	binary.LittleEndian.PutUint32(buf, uint32(i))
	return buf, true
}

// DecodeValue unpacks the little-endian wire representation of data for the
// given data type. It returns ok=false when the slice is too short or the
// data type isn't supported for decode.
func DecodeValue(dt DataType, data []byte) (Value, bool) {
	switch {
	case dt.IsNumeric():
		return decodeNumeric(dt, data)
	case dt == DataTypeBoolean:
		if len(data) < 4 {
			return Value{}, false
		}
		return BoolValue(binary.LittleEndian.Uint32(data) == 0xFF00), true
	case dt == DataTypeEnum:
		if len(data) < 4 {
			return Value{}, false
		}
		return IntValue(int64(binary.LittleEndian.Uint32(data))), true
	case dt == DataTypeButton:
		if len(data) < 4 {
			return Value{}, false
		}
		return ButtonValue(int64(binary.LittleEndian.Uint32(data))), true
	case dt == DataTypeSwitch:
		if len(data) < 4 {
			return Value{}, false
		}
		return SwitchValue(int64(binary.LittleEndian.Uint32(data))), true
	case dt.IsText():
		return decodeText(dt, data)
	}
	return Value{}, false
}

// decodeNumeric always reads a 4-byte little-endian slot — mirroring the
// original connector's transform_value_from_bytes, which unconditionally
// does struct.unpack("<f"/"<I"/"<i", value[0:4]) regardless of the
// register's declared storage width.
func decodeNumeric(dt DataType, data []byte) (Value, bool) {
	if len(data) < 4 {
		return Value{}, false
	}
	raw := binary.LittleEndian.Uint32(data)
	switch dt {
	case DataTypeChar:
		return IntValue(int64(int8(raw))), true
	case DataTypeUChar:
		return IntValue(int64(byte(raw))), true
	case DataTypeShort:
		return IntValue(int64(int16(raw))), true
	case DataTypeUShort:
		return IntValue(int64(uint16(raw))), true
	case DataTypeInt:
		return IntValue(int64(int32(raw))), true
	case DataTypeUInt:
		return IntValue(int64(raw)), true
	case DataTypeFloat:
		return FloatValue(float64(math.Float32frombits(raw))), true
	}
	return Value{}, false
}

// decodeText reads a length-prefixed (or space-terminated) ASCII run and,
// for date/time kinds, parses it per the ISO-like layouts the bus uses.
func decodeText(dt DataType, data []byte) (Value, bool) {
	if len(data) < 1 {
		return Value{}, false
	}
	n := int(data[0])
	body := data[1:]
	if n > 0 && n <= len(body) {
		body = body[:n]
	} else if i := strings.IndexByte(string(body), textTerminator); i >= 0 {
		body = body[:i]
	}
	s := string(body)
	if dt == DataTypeString {
		return StringValue(s), true
	}
	layout := layoutFor(dt)
	t, err := time.Parse(layout, s)
	if err != nil {
		return Value{}, false
	}
	return TimeValue(t), true
}
