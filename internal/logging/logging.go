// Package logging configures commonlog for the noderpc commands.
package logging

import (
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// Configure installs the simple backend. verbosity is the number of -v
// flags, negative for quiet; path, when set, sends output to a file instead
// of stderr.
func Configure(verbosity int, path string) {
	if path == "" {
		commonlog.Configure(verbosity, nil)
		return
	}
	commonlog.Configure(verbosity, &path)
}

// Logger returns the named logger under the noderpc prefix.
func Logger(name string) commonlog.Logger {
	return commonlog.GetLogger("noderpc." + name)
}
