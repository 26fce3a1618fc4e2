package validation

import "errors"

// Error kinds for per-table failures. All are fatal to the table they occur
// on and isolated by the orchestrator, except ErrDetailCollection which is
// logged and swallowed because aggregate counts remain correct without
// details. Retry is the operator's call: rerunning with --resume continues
// from the last checkpoint.
var (
	ErrCatalog          = errors.New("catalog lookup failed")
	ErrChunkExecution   = errors.New("chunk execution failed")
	ErrCursorDecode     = errors.New("resume cursor is malformed")
	ErrConnectivity     = errors.New("connectivity failure")
	ErrDetailCollection = errors.New("detail collection failed")
)
