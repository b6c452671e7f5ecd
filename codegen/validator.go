package codegen

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"
	"strings"
)

// ValidationError is a problem found in generated Go source.
type ValidationError struct {
	Line     int
	Column   int
	Function string // Method/function name containing the error
	Receiver string // Receiver type for methods (empty for functions)
	Message  string
}

// CodeValidator checks generated Go source in memory. Proxies import this
// module's rpc package, so only syntax and declaration shape are checked;
// type-checking happens when the host program is compiled.
type CodeValidator struct {
	fset     *token.FileSet
	filename string
}

// NewCodeValidator creates a validator for the given filename (used in error messages)
func NewCodeValidator(filename string) *CodeValidator {
	return &CodeValidator{
		filename: filename,
	}
}

// Validate parses source and reports every syntax error, attributed to the
// enclosing function where one can be found.
func (cv *CodeValidator) Validate(source string) []ValidationError {
	cv.fset = token.NewFileSet()

	file, err := parser.ParseFile(cv.fset, cv.filename, source, parser.AllErrors|parser.ParseComments)
	if err == nil {
		return cv.checkDecls(file)
	}

	var funcMap map[int]*functionInfo
	if file != nil {
		funcMap = cv.buildFunctionMap(file)
	}

	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return []ValidationError{{Line: 1, Column: 1, Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(list))
	for _, e := range list {
		ve := ValidationError{Line: e.Pos.Line, Column: e.Pos.Column, Message: e.Msg}
		if fn := funcMap[e.Pos.Line]; fn != nil {
			ve.Function = fn.Name
			ve.Receiver = fn.Receiver
		}
		out = append(out, ve)
	}
	return out
}

// checkDecls reports functions declared twice on the same receiver, which
// parse cleanly but would never compile.
func (cv *CodeValidator) checkDecls(file *ast.File) []ValidationError {
	var out []ValidationError
	seen := make(map[string]bool)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		recv := ""
		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			recv = cv.extractReceiverType(fn.Recv.List[0].Type)
		}
		key := recv + "." + fn.Name.Name
		if seen[key] {
			pos := cv.fset.Position(fn.Pos())
			out = append(out, ValidationError{
				Line:     pos.Line,
				Column:   pos.Column,
				Function: fn.Name.Name,
				Receiver: recv,
				Message:  fn.Name.Name + " redeclared",
			})
		}
		seen[key] = true
	}
	return out
}

type functionInfo struct {
	Name      string
	Receiver  string
	StartLine int
	EndLine   int
}

func (cv *CodeValidator) buildFunctionMap(file *ast.File) map[int]*functionInfo {
	funcMap := make(map[int]*functionInfo)

	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			startPos := cv.fset.Position(fn.Pos())
			endPos := cv.fset.Position(fn.End())

			info := &functionInfo{
				Name:      fn.Name.Name,
				StartLine: startPos.Line,
				EndLine:   endPos.Line,
			}

			if fn.Recv != nil && len(fn.Recv.List) > 0 {
				info.Receiver = cv.extractReceiverType(fn.Recv.List[0].Type)
			}

			for line := startPos.Line; line <= endPos.Line; line++ {
				funcMap[line] = info
			}
		}
	}

	return funcMap
}

func (cv *CodeValidator) extractReceiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		if ident, ok := t.X.(*ast.Ident); ok {
			return "*" + ident.Name
		}
	}
	return ""
}

// FormatValidationErrors returns a human-readable error report
func FormatValidationErrors(errs []ValidationError, filename string) string {
	if len(errs) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, err := range errs {
		sb.WriteString("  ")
		sb.WriteString(filename)
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(err.Line))
		sb.WriteString(": ")
		if err.Function != "" {
			if err.Receiver != "" {
				sb.WriteString("(" + err.Receiver + ")." + err.Function)
			} else {
				sb.WriteString(err.Function)
			}
			sb.WriteString(": ")
		}
		sb.WriteString(err.Message)
		sb.WriteString("\n")
	}

	return sb.String()
}
