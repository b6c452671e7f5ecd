package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxArrayLength is the largest element count a u16 prefix can carry.
const MaxArrayLength = math.MaxUint16

var (
	// ErrShortBuffer is reported when a payload ends before a value does.
	ErrShortBuffer = errors.New("payload too short")
	// ErrTrailingBytes is reported when a payload has bytes left after the
	// last expected value.
	ErrTrailingBytes = errors.New("trailing bytes after payload")
)

// ArrayLengthError is returned by Encoder.Payload when a buffer has more
// elements than a u16 prefix can describe.
type ArrayLengthError struct {
	Type   ParamType
	Length int
}

func (e *ArrayLengthError) Error() string {
	return fmt.Sprintf("%s of %d elements exceeds %d", e.Type, e.Length, MaxArrayLength)
}

// ---------------------------------------------------------------------------
// Encoder
// ---------------------------------------------------------------------------

// Encoder appends values in frame encoding. The first error is sticky and
// reported by Payload.
type Encoder struct {
	buf []byte
	err error
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Payload returns the encoded bytes, or the first error seen.
func (e *Encoder) Payload() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) PutUint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) PutInt8(v int8)     { e.buf = append(e.buf, uint8(v)) }
func (e *Encoder) PutUint16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *Encoder) PutInt16(v int16)   { e.PutUint16(uint16(v)) }
func (e *Encoder) PutUint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *Encoder) PutInt32(v int32)   { e.PutUint32(uint32(v)) }
func (e *Encoder) PutUint64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *Encoder) PutInt64(v int64)   { e.PutUint64(uint64(v)) }

func (e *Encoder) PutFloat32(v float32) { e.PutUint32(math.Float32bits(v)) }

func (e *Encoder) putCount(t ParamType, n int) bool {
	if n > MaxArrayLength {
		if e.err == nil {
			e.err = &ArrayLengthError{Type: t, Length: n}
		}
		return false
	}
	e.PutUint16(uint16(n))
	return true
}

func (e *Encoder) PutUint8Array(v []byte) {
	if e.putCount(Uint8Array, len(v)) {
		e.buf = append(e.buf, v...)
	}
}

func (e *Encoder) PutInt8Array(v []int8) {
	if e.putCount(Int8Array, len(v)) {
		for _, x := range v {
			e.PutInt8(x)
		}
	}
}

func (e *Encoder) PutUint16Array(v []uint16) {
	if e.putCount(Uint16Array, len(v)) {
		for _, x := range v {
			e.PutUint16(x)
		}
	}
}

func (e *Encoder) PutInt16Array(v []int16) {
	if e.putCount(Int16Array, len(v)) {
		for _, x := range v {
			e.PutInt16(x)
		}
	}
}

func (e *Encoder) PutUint32Array(v []uint32) {
	if e.putCount(Uint32Array, len(v)) {
		for _, x := range v {
			e.PutUint32(x)
		}
	}
}

func (e *Encoder) PutInt32Array(v []int32) {
	if e.putCount(Int32Array, len(v)) {
		for _, x := range v {
			e.PutInt32(x)
		}
	}
}

func (e *Encoder) PutFloatArray(v []float32) {
	if e.putCount(FloatArray, len(v)) {
		for _, x := range v {
			e.PutFloat32(x)
		}
	}
}

// ---------------------------------------------------------------------------
// Decoder
// ---------------------------------------------------------------------------

// Decoder reads values in frame encoding. After the first short read every
// accessor returns the zero value; Finish reports what went wrong.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder reads from b without copying it.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// Err returns the first decode error, if any.
func (d *Decoder) Err() error { return d.err }

// Finish checks that every byte was consumed and no read ran short.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, len(d.buf)-d.off)
	}
	return nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n > len(d.buf)-d.off {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.off, len(d.buf)-d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *Decoder) Bool() bool {
	b := d.take(1)
	return b != nil && b[0] != 0
}

func (d *Decoder) Uint8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *Decoder) Int8() int8 { return int8(d.Uint8()) }

func (d *Decoder) Uint16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *Decoder) Int16() int16 { return int16(d.Uint16()) }

func (d *Decoder) Uint32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *Decoder) Int32() int32 { return int32(d.Uint32()) }

func (d *Decoder) Uint64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *Decoder) Int64() int64 { return int64(d.Uint64()) }

func (d *Decoder) Float32() float32 { return math.Float32frombits(d.Uint32()) }

// count reads an element count and checks the elements are all present, so a
// corrupt prefix cannot trigger a huge allocation.
func (d *Decoder) count(width int) int {
	n := int(d.Uint16())
	if d.err == nil && n*width > d.Remaining() {
		d.err = fmt.Errorf("%w: %d elements of %d bytes at offset %d, have %d bytes",
			ErrShortBuffer, n, width, d.off, d.Remaining())
		return 0
	}
	return n
}

// Uint8Array returns a copy of the buffer's bytes.
func (d *Decoder) Uint8Array() []byte {
	n := d.count(1)
	if d.err != nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, d.take(n))
	return out
}

func (d *Decoder) Int8Array() []int8 {
	n := d.count(1)
	if d.err != nil {
		return nil
	}
	out := make([]int8, n)
	for i := range out {
		out[i] = d.Int8()
	}
	return out
}

func (d *Decoder) Uint16Array() []uint16 {
	n := d.count(2)
	if d.err != nil {
		return nil
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = d.Uint16()
	}
	return out
}

func (d *Decoder) Int16Array() []int16 {
	n := d.count(2)
	if d.err != nil {
		return nil
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = d.Int16()
	}
	return out
}

func (d *Decoder) Uint32Array() []uint32 {
	n := d.count(4)
	if d.err != nil {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = d.Uint32()
	}
	return out
}

func (d *Decoder) Int32Array() []int32 {
	n := d.count(4)
	if d.err != nil {
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = d.Int32()
	}
	return out
}

func (d *Decoder) FloatArray() []float32 {
	n := d.count(4)
	if d.err != nil {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = d.Float32()
	}
	return out
}

// ---------------------------------------------------------------------------
// Dynamic values
// ---------------------------------------------------------------------------

// PutValue encodes v, which must hold the Go type of t (see ParamType.GoName).
// Used where the type is only known at run time, such as the simulated node.
func (e *Encoder) PutValue(t ParamType, v any) error {
	ok := true
	switch t {
	case Bool:
		var x bool
		if x, ok = v.(bool); ok {
			e.PutBool(x)
		}
	case Uint8:
		var x uint8
		if x, ok = v.(uint8); ok {
			e.PutUint8(x)
		}
	case Int8:
		var x int8
		if x, ok = v.(int8); ok {
			e.PutInt8(x)
		}
	case Uint16:
		var x uint16
		if x, ok = v.(uint16); ok {
			e.PutUint16(x)
		}
	case Int16:
		var x int16
		if x, ok = v.(int16); ok {
			e.PutInt16(x)
		}
	case Uint32:
		var x uint32
		if x, ok = v.(uint32); ok {
			e.PutUint32(x)
		}
	case Int32:
		var x int32
		if x, ok = v.(int32); ok {
			e.PutInt32(x)
		}
	case Uint64:
		var x uint64
		if x, ok = v.(uint64); ok {
			e.PutUint64(x)
		}
	case Int64:
		var x int64
		if x, ok = v.(int64); ok {
			e.PutInt64(x)
		}
	case Float32:
		var x float32
		if x, ok = v.(float32); ok {
			e.PutFloat32(x)
		}
	case Uint8Array:
		var x []byte
		if x, ok = v.([]byte); ok {
			e.PutUint8Array(x)
		}
	case Int8Array:
		var x []int8
		if x, ok = v.([]int8); ok {
			e.PutInt8Array(x)
		}
	case Uint16Array:
		var x []uint16
		if x, ok = v.([]uint16); ok {
			e.PutUint16Array(x)
		}
	case Int16Array:
		var x []int16
		if x, ok = v.([]int16); ok {
			e.PutInt16Array(x)
		}
	case Uint32Array:
		var x []uint32
		if x, ok = v.([]uint32); ok {
			e.PutUint32Array(x)
		}
	case Int32Array:
		var x []int32
		if x, ok = v.([]int32); ok {
			e.PutInt32Array(x)
		}
	case FloatArray:
		var x []float32
		if x, ok = v.([]float32); ok {
			e.PutFloatArray(x)
		}
	case Void:
		ok = v == nil
	default:
		return fmt.Errorf("unknown parameter type %d", int(t))
	}
	if !ok {
		return fmt.Errorf("cannot encode %T as %s", v, t)
	}
	return nil
}

// Value decodes one value of type t. Void yields nil.
func (d *Decoder) Value(t ParamType) any {
	switch t {
	case Bool:
		return d.Bool()
	case Uint8:
		return d.Uint8()
	case Int8:
		return d.Int8()
	case Uint16:
		return d.Uint16()
	case Int16:
		return d.Int16()
	case Uint32:
		return d.Uint32()
	case Int32:
		return d.Int32()
	case Uint64:
		return d.Uint64()
	case Int64:
		return d.Int64()
	case Float32:
		return d.Float32()
	case Uint8Array:
		return d.Uint8Array()
	case Int8Array:
		return d.Int8Array()
	case Uint16Array:
		return d.Uint16Array()
	case Int16Array:
		return d.Int16Array()
	case Uint32Array:
		return d.Uint32Array()
	case Int32Array:
		return d.Int32Array()
	case FloatArray:
		return d.FloatArray()
	}
	return nil
}
