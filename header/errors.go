package header

import "fmt"

// ParseError reports a class that could not be found or a declaration that
// could not be read. Path and Line are set when a location is known.
type ParseError struct {
	Class string
	Path  string
	Line  int
	Msg   string
}

func (e *ParseError) Error() string {
	loc := e.Path
	if loc != "" && e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	switch {
	case loc != "" && e.Class != "":
		return fmt.Sprintf("%s: class %s: %s", loc, e.Class, e.Msg)
	case loc != "":
		return fmt.Sprintf("%s: %s", loc, e.Msg)
	case e.Class != "":
		return fmt.Sprintf("class %s: %s", e.Class, e.Msg)
	}
	return e.Msg
}

// UnsupportedTypeError reports an exposed method whose parameter or return
// type has no wire encoding.
type UnsupportedTypeError struct {
	Class  string
	Method string
	Type   string
	Path   string
	Line   int
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s:%d: %s::%s: unsupported type %q", e.Path, e.Line, e.Class, e.Method, e.Type)
}
