package codegen

import (
	"fmt"
	"os"
	"regexp"
)

var headerDigestRe = regexp.MustCompile(`PROTOCOL_DIGEST\[\] = "([0-9a-f]+)"`)

// ReadHeaderDigest returns the protocol digest embedded in a generated
// dispatch header.
func ReadHeaderDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	m := headerDigestRe.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("%s: no protocol digest (not a generated dispatch header?)", path)
	}
	return string(m[1]), nil
}
