// Package emit provides pluggable observability backends for a
// workflow run: logging, buffering for tests, and OpenTelemetry
// tracing, grounded in the teacher's graph/emit package.
package emit

import (
	"github.com/cwlgo/wfcore/workflow"
)

// Event is an alias for the core's observability record, re-exported so
// callers constructing emitters don't need to import both packages.
type Event = workflow.Event
