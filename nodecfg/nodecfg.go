// Package nodecfg encodes the configuration and state messages that nodes
// exchange as serialized UInt8Array arguments, and validates updates the way
// the node firmware does before applying them.
//
// Messages use the protobuf wire format. Every field is optional; a nil
// pointer means the field is absent.
package nodecfg

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Config field numbers.
const (
	fieldSerialNumber protowire.Number = 1
	fieldBaudRate     protowire.Number = 2
	fieldI2CAddress   protowire.Number = 3
)

// State field numbers.
const (
	fieldFloatValue   protowire.Number = 1
	fieldIntegerValue protowire.Number = 2
)

// Config is the persistent node configuration.
type Config struct {
	SerialNumber *uint32
	BaudRate     *uint32
	I2CAddress   *uint32
}

// State is the node's runtime state.
type State struct {
	FloatValue   *float32
	IntegerValue *int32
}

// Uint32 returns a pointer to v.
func Uint32(v uint32) *uint32 { return &v }

// Float32 returns a pointer to v.
func Float32(v float32) *float32 { return &v }

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }

// Marshal encodes c, fields in number order.
func (c Config) Marshal() []byte {
	var b []byte
	for _, f := range []struct {
		num protowire.Number
		v   *uint32
	}{
		{fieldSerialNumber, c.SerialNumber},
		{fieldBaudRate, c.BaudRate},
		{fieldI2CAddress, c.I2CAddress},
	} {
		if f.v != nil {
			b = protowire.AppendTag(b, f.num, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(*f.v))
		}
	}
	return b
}

// Marshal encodes s, fields in number order.
func (s State) Marshal() []byte {
	var b []byte
	if s.FloatValue != nil {
		b = protowire.AppendTag(b, fieldFloatValue, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(*s.FloatValue))
	}
	if s.IntegerValue != nil {
		b = protowire.AppendTag(b, fieldIntegerValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*s.IntegerValue)))
	}
	return b
}

// UnmarshalConfig decodes a Config. Unknown fields are skipped.
func UnmarshalConfig(b []byte) (Config, error) {
	var c Config
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var dst **uint32
		switch num {
		case fieldSerialNumber:
			dst = &c.SerialNumber
		case fieldBaudRate:
			dst = &c.BaudRate
		case fieldI2CAddress:
			dst = &c.I2CAddress
		default:
			return 0, errSkip
		}
		if typ != protowire.VarintType {
			return 0, fmt.Errorf("config field %d: wire type %d, want varint", num, typ)
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return n, nil
		}
		if v > math.MaxUint32 {
			return 0, fmt.Errorf("config field %d: value %d overflows uint32", num, v)
		}
		*dst = Uint32(uint32(v))
		return n, nil
	})
	return c, err
}

// UnmarshalState decodes a State. Unknown fields are skipped.
func UnmarshalState(b []byte) (State, error) {
	var s State
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldFloatValue:
			if typ != protowire.Fixed32Type {
				return 0, fmt.Errorf("state field %d: wire type %d, want fixed32", num, typ)
			}
			v, n := protowire.ConsumeFixed32(b)
			if n >= 0 {
				s.FloatValue = Float32(math.Float32frombits(v))
			}
			return n, nil
		case fieldIntegerValue:
			if typ != protowire.VarintType {
				return 0, fmt.Errorf("state field %d: wire type %d, want varint", num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 {
				s.IntegerValue = Int32(int32(v))
			}
			return n, nil
		}
		return 0, errSkip
	})
	return s, err
}

var errSkip = errors.New("skip field")

// walk visits each field. visit returns the bytes it consumed or a negative
// protowire error code; errSkip has the field skipped.
func walk(b []byte, visit func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := visit(num, typ, b)
		if errors.Is(err, errSkip) {
			m, err = protowire.ConsumeFieldValue(num, typ, b), nil
		}
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

// FieldError rejects one field of an update.
type FieldError struct {
	Message string
	Field   string
	Value   any
	Reason  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s = %v: %s", e.Message, e.Field, e.Value, e.Reason)
}

// FieldErrors collects every rejected field.
type FieldErrors []*FieldError

func (es FieldErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidBaudRates are the rates a node accepts.
var ValidBaudRates = []uint32{300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 28800, 31250, 38400, 57600, 115200}

func checkSerialNumber(v uint32) string {
	if v == 0 {
		return "must be greater than zero"
	}
	return ""
}

func checkBaudRate(v uint32) string {
	for _, r := range ValidBaudRates {
		if v == r {
			return ""
		}
	}
	return "unsupported baud rate"
}

func checkI2CAddress(v uint32) string {
	if v < 0x08 || v > 0x77 {
		return "must be in 0x08..0x77"
	}
	return ""
}

func checkFloatValue(v float32) string {
	if !(v > 3.14) {
		return "must be greater than 3.14"
	}
	return ""
}

func checkIntegerValue(v int32) string {
	if v <= 5 || v >= 1024 {
		return "must be between 6 and 1023"
	}
	return ""
}

// Validate checks every present field.
func (c Config) Validate() error {
	_, errs := MergeConfig(Config{}, c)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate checks every present field.
func (s State) Validate() error {
	_, errs := MergeState(State{}, s)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// MergeConfig applies the present, valid fields of update to current. The
// rejected fields are reported and leave current's value in place.
func MergeConfig(current, update Config) (Config, FieldErrors) {
	var errs FieldErrors
	apply := func(name string, dst **uint32, src *uint32, check func(uint32) string) {
		if src == nil {
			return
		}
		if reason := check(*src); reason != "" {
			errs = append(errs, &FieldError{Message: "Config", Field: name, Value: *src, Reason: reason})
			return
		}
		*dst = Uint32(*src)
	}
	apply("serial_number", &current.SerialNumber, update.SerialNumber, checkSerialNumber)
	apply("baud_rate", &current.BaudRate, update.BaudRate, checkBaudRate)
	apply("i2c_address", &current.I2CAddress, update.I2CAddress, checkI2CAddress)
	return current, errs
}

// MergeState applies the present, valid fields of update to current.
func MergeState(current, update State) (State, FieldErrors) {
	var errs FieldErrors
	if v := update.FloatValue; v != nil {
		if reason := checkFloatValue(*v); reason != "" {
			errs = append(errs, &FieldError{Message: "State", Field: "float_value", Value: *v, Reason: reason})
		} else {
			current.FloatValue = Float32(*v)
		}
	}
	if v := update.IntegerValue; v != nil {
		if reason := checkIntegerValue(*v); reason != "" {
			errs = append(errs, &FieldError{Message: "State", Field: "integer_value", Value: *v, Reason: reason})
		} else {
			current.IntegerValue = Int32(*v)
		}
	}
	return current, errs
}
