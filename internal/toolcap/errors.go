package toolcap

import "errors"

// ErrPathDenied is returned internally when a path escapes the sandbox and
// is not covered by the project's AllowedExternalPaths. Tool dispatch never
// surfaces it to the worker as a Go error (spec §4.3: tools never raise
// exceptions out of tool execution) — it is only ever rendered into the
// "Error: Access denied" string result.
var ErrPathDenied = errors.New("toolcap: path denied")
