// Package rpc defines the command table shared by the embedded dispatcher and
// the host proxy, the frame encoding both sides agree on, and the host-side
// client that carries proxy calls over a packet link.
package rpc

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Parameter and return types
// ---------------------------------------------------------------------------

// ParamType is a type that can cross the wire, as a parameter or a return
// value. The set is closed: every value has exactly one encoding.
type ParamType int

const (
	Void ParamType = iota
	Bool
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Uint8Array
	Int8Array
	Uint16Array
	Int16Array
	Uint32Array
	Int32Array
	FloatArray
)

type typeInfo struct {
	cName  string    // canonical C++ spelling
	goName string    // Go spelling used by generated proxies
	codec  string    // Encoder/Decoder method suffix
	width  int       // scalar width, or element width for arrays
	elem   ParamType // element type for arrays
	array  bool
}

var typeInfos = map[ParamType]typeInfo{
	Void:        {cName: "void", goName: "", width: 0},
	Bool:        {cName: "bool", goName: "bool", codec: "Bool", width: 1},
	Uint8:       {cName: "uint8_t", goName: "uint8", codec: "Uint8", width: 1},
	Int8:        {cName: "int8_t", goName: "int8", codec: "Int8", width: 1},
	Uint16:      {cName: "uint16_t", goName: "uint16", codec: "Uint16", width: 2},
	Int16:       {cName: "int16_t", goName: "int16", codec: "Int16", width: 2},
	Uint32:      {cName: "uint32_t", goName: "uint32", codec: "Uint32", width: 4},
	Int32:       {cName: "int32_t", goName: "int32", codec: "Int32", width: 4},
	Uint64:      {cName: "uint64_t", goName: "uint64", codec: "Uint64", width: 8},
	Int64:       {cName: "int64_t", goName: "int64", codec: "Int64", width: 8},
	Float32:     {cName: "float", goName: "float32", codec: "Float32", width: 4},
	Uint8Array:  {cName: "UInt8Array", goName: "[]byte", codec: "Uint8Array", width: 1, elem: Uint8, array: true},
	Int8Array:   {cName: "Int8Array", goName: "[]int8", codec: "Int8Array", width: 1, elem: Int8, array: true},
	Uint16Array: {cName: "UInt16Array", goName: "[]uint16", codec: "Uint16Array", width: 2, elem: Uint16, array: true},
	Int16Array:  {cName: "Int16Array", goName: "[]int16", codec: "Int16Array", width: 2, elem: Int16, array: true},
	Uint32Array: {cName: "UInt32Array", goName: "[]uint32", codec: "Uint32Array", width: 4, elem: Uint32, array: true},
	Int32Array:  {cName: "Int32Array", goName: "[]int32", codec: "Int32Array", width: 4, elem: Int32, array: true},
	FloatArray:  {cName: "FloatArray", goName: "[]float32", codec: "FloatArray", width: 4, elem: Float32, array: true},
}

// cSpellings maps every accepted C++ spelling to its ParamType. `int` is
// carried as 32 bits on the wire whatever the board's native width is.
var cSpellings = map[string]ParamType{
	"void":               Void,
	"bool":               Bool,
	"uint8_t":            Uint8,
	"unsigned char":      Uint8,
	"byte":               Uint8,
	"int8_t":             Int8,
	"signed char":        Int8,
	"char":               Int8,
	"uint16_t":           Uint16,
	"unsigned short":     Uint16,
	"word":               Uint16,
	"int16_t":            Int16,
	"short":              Int16,
	"uint32_t":           Uint32,
	"unsigned long":      Uint32,
	"unsigned int":       Uint32,
	"unsigned":           Uint32,
	"int32_t":            Int32,
	"long":               Int32,
	"int":                Int32,
	"uint64_t":           Uint64,
	"unsigned long long": Uint64,
	"int64_t":            Int64,
	"long long":          Int64,
	"float":              Float32,
	"UInt8Array":         Uint8Array,
	"Int8Array":          Int8Array,
	"UInt16Array":        Uint16Array,
	"Int16Array":         Int16Array,
	"UInt32Array":        Uint32Array,
	"Int32Array":         Int32Array,
	"FloatArray":         FloatArray,
}

// LookupCType maps a C++ type spelling to its ParamType. Qualifiers must
// already be stripped; internal whitespace is normalised.
func LookupCType(spelling string) (ParamType, bool) {
	t, ok := cSpellings[strings.Join(strings.Fields(spelling), " ")]
	return t, ok
}

// String returns the canonical C++ spelling.
func (t ParamType) String() string {
	if info, ok := typeInfos[t]; ok {
		return info.cName
	}
	return fmt.Sprintf("ParamType(%d)", int(t))
}

// CName returns the canonical C++ spelling used in generated headers.
func (t ParamType) CName() string { return typeInfos[t].cName }

// GoName returns the Go spelling used in generated proxies. Empty for Void.
func (t ParamType) GoName() string { return typeInfos[t].goName }

// CodecName returns the suffix of the Encoder.Put*/Decoder method for t.
func (t ParamType) CodecName() string { return typeInfos[t].codec }

// Width returns the encoded size of a scalar, or the element size of an array.
func (t ParamType) Width() int { return typeInfos[t].width }

// IsArray reports whether t is a length-prefixed buffer.
func (t ParamType) IsArray() bool { return typeInfos[t].array }

// Elem returns the element type of an array type.
func (t ParamType) Elem() ParamType { return typeInfos[t].elem }

// Valid reports whether t is a member of the closed type set.
func (t ParamType) Valid() bool {
	_, ok := typeInfos[t]
	return ok
}
