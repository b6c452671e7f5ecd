package codegen

import (
	"fmt"
	"go/token"
	"go/types"
	"strings"
	"unicode"
)

// toPascal converts a string to PascalCase.
// Handles hyphenated, underscore-separated and camelCase names.
func toPascal(s string) string {
	if len(s) == 0 {
		return s
	}

	var b strings.Builder
	nextUpper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			nextUpper = true
			continue
		}
		if nextUpper {
			b.WriteRune(unicode.ToUpper(r))
			nextUpper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// toCamel converts a string to camelCase.
func toCamel(s string) string {
	p := toPascal(s)
	if p == "" {
		return p
	}
	r := []rune(p)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// toSnake converts PascalCase or camelCase to snake_case, keeping acronyms
// together: "ADCReader" → "adc_reader".
func toSnake(s string) string {
	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if unicode.IsUpper(c) {
			prevLower := i > 0 && (unicode.IsLower(r[i-1]) || unicode.IsDigit(r[i-1]))
			nextLower := i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) && unicode.IsUpper(r[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// toMacro converts a method name to UPPER_SNAKE for C++ constants.
func toMacro(s string) string {
	return strings.ToUpper(toSnake(s))
}

// CommandConst is the Go constant naming a command id.
func CommandConst(method string) string { return "Cmd" + toPascal(method) }

// CommandMacro is the C++ constant naming a command id.
func CommandMacro(method string) string { return "CMD_" + toMacro(method) }

// ProxyType is the Go type generated for a class.
func ProxyType(class string) string { return toPascal(class) + "Proxy" }

// DispatchHeaderName is the file name of the embedded dispatch header.
func DispatchHeaderName(class string) string { return toSnake(class) + "_rpc.h" }

// ProxyFileName is the file name of the Go proxy.
func ProxyFileName(class string) string { return toSnake(class) + "_proxy.go" }

// reservedMethods are methods every proxy already has.
var reservedMethods = map[string]bool{
	"Caller": true,
}

// reservedLocals are identifiers used inside generated method bodies,
// including the packages they refer to.
var reservedLocals = map[string]bool{
	"ctx": true, "p": true, "enc": true, "args": true,
	"reply": true, "dec": true, "result": true, "err": true,
	"fmt": true, "rpc": true, "context": true,
}

// goParamNames converts declared parameter names to distinct Go identifiers.
func goParamNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, name := range names {
		id := toCamel(name)
		switch {
		case id == "" || id == "_":
			id = fmt.Sprintf("arg%d", i)
		case token.IsKeyword(id) || types.Universe.Lookup(id) != nil || reservedLocals[id]:
			id += "Arg"
		}
		for base, n := id, 1; used[id]; n++ {
			id = fmt.Sprintf("%s%d", base, n)
		}
		used[id] = true
		out[i] = id
	}
	return out
}
