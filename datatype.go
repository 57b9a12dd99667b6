package fbbus

import "fmt"

// DataType is the declared wire type of a register's content.
type DataType byte

const (
	DataTypeChar DataType = iota + 1
	DataTypeUChar
	DataTypeShort
	DataTypeUShort
	DataTypeInt
	DataTypeUInt
	DataTypeFloat
	DataTypeBoolean
	DataTypeEnum
	DataTypeString
	DataTypeDate
	DataTypeTime
	DataTypeDateTime
	DataTypeButton
	DataTypeSwitch

	// DataTypeUnknown classifies any numeric value the bus advertises that
	// this engine doesn't recognize. It is a valid register state (an
	// ATTRIBUTE not yet interrogated during pairing carries it) but can
	// never be built onto the wire.
	DataTypeUnknown DataType = 0xFF
)

var dataTypeNames = map[DataType]string{
	DataTypeChar:     "char",
	DataTypeUChar:    "uchar",
	DataTypeShort:    "short",
	DataTypeUShort:   "ushort",
	DataTypeInt:      "int",
	DataTypeUInt:     "uint",
	DataTypeFloat:    "float",
	DataTypeBoolean:  "boolean",
	DataTypeEnum:     "enum",
	DataTypeString:   "string",
	DataTypeDate:     "date",
	DataTypeTime:     "time",
	DataTypeDateTime: "datetime",
	DataTypeButton:   "button",
	DataTypeSwitch:   "switch",
	DataTypeUnknown:  "unknown",
}

func (d DataType) String() string {
	if n, ok := dataTypeNames[d]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", byte(d))
}

// ParseDataType classifies a numeric wire value, returning DataTypeUnknown
// for anything unrecognized.
func ParseDataType(v byte) DataType {
	d := DataType(v)
	if _, ok := dataTypeNames[d]; ok {
		return d
	}
	return DataTypeUnknown
}

// fixedSizes holds the declared byte width for data types with a constant
// size. On the wire every such value rides in a 4-byte slot (see
// encodeNumeric in value.go). Text types (string/date/time/datetime) are
// length-prefixed instead and have no entry here.
var fixedSizes = map[DataType]int{
	DataTypeChar:    1,
	DataTypeUChar:   1,
	DataTypeShort:   2,
	DataTypeUShort:  2,
	DataTypeInt:     4,
	DataTypeUInt:    4,
	DataTypeFloat:   4,
	DataTypeBoolean: 4, // wire slot carries a 0xFF00/0x0000 pattern, see value.go
	DataTypeEnum:    4,
	DataTypeButton:  4,
	DataTypeSwitch:  4,
}

// Size reports the fixed declared byte width for the data type, and whether
// it has one at all (text types do not).
func (d DataType) Size() (int, bool) {
	n, ok := fixedSizes[d]
	return n, ok
}

// IsText reports whether the data type is carried as a length-prefixed
// ASCII byte run rather than a fixed-width scalar.
func (d DataType) IsText() bool {
	switch d {
	case DataTypeString, DataTypeDate, DataTypeTime, DataTypeDateTime:
		return true
	}
	return false
}

// IsNumeric reports whether the data type packs as a little-endian integer
// or float scalar.
func (d DataType) IsNumeric() bool {
	switch d {
	case DataTypeChar, DataTypeUChar, DataTypeShort, DataTypeUShort,
		DataTypeInt, DataTypeUInt, DataTypeFloat:
		return true
	}
	return false
}
