package codegen

import (
	"strings"
	"testing"
)

func TestValidate_ValidCode(t *testing.T) {
	cv := NewCodeValidator("test.go")
	source := `package main

func main() {
	x := 1
	_ = x
}
`
	if errs := cv.Validate(source); len(errs) != 0 {
		t.Errorf("Expected no errors for valid code, got %d: %v", len(errs), errs)
	}
}

func TestValidate_SyntaxErrorAttributed(t *testing.T) {
	cv := NewCodeValidator("proxy.go")
	source := `package proxy

type NodeProxy struct{}

func (p *NodeProxy) GetVoltage() (float32, error) {
	x :=
}
`
	errs := cv.Validate(source)
	if len(errs) == 0 {
		t.Fatal("Expected syntax error, got none")
	}
	if errs[0].Line < 6 {
		t.Errorf("Line = %d, want >= 6", errs[0].Line)
	}

	report := FormatValidationErrors(errs, "proxy.go")
	if !strings.Contains(report, "proxy.go:") {
		t.Errorf("report missing filename: %s", report)
	}
}

func TestValidate_Redeclared(t *testing.T) {
	cv := NewCodeValidator("proxy.go")
	source := `package proxy

type NodeProxy struct{}

func (p *NodeProxy) Ping() error { return nil }
func (p *NodeProxy) Ping() error { return nil }
`
	errs := cv.Validate(source)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if errs[0].Function != "Ping" || errs[0].Receiver != "*NodeProxy" {
		t.Errorf("error = %+v", errs[0])
	}
}
