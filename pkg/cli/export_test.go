package cli

import "io"

var GetIndexConfig = getIndexConfig

// SetStdout redirects command output and returns a func restoring it
func SetStdout(w io.Writer) func() {
	prev := stdout
	stdout = w
	return func() { stdout = prev }
}
