package workflow

import (
	"fmt"
	"strings"
	"sync"
)

// ShortName strips an id down to its final fragment, mirroring cwltool's
// shortname: "#main/step1/out" -> "out", "file:///wf.cwl#x" -> "x".
func ShortName(id string) string {
	if i := strings.LastIndexAny(id, "/#"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// nameCounters de-duplicates human-readable step names within a single
// workflow (NewWorkflow creates one per workflow), grounded in cwltool's uniquename.
type nameCounters struct {
	mu     sync.Mutex
	counts map[string]int
}

func newNameCounters() *nameCounters {
	return &nameCounters{counts: make(map[string]int)}
}

func (n *nameCounters) UniqueName(base string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := n.counts[base]
	n.counts[base] = count + 1
	if count == 0 {
		return base
	}
	return fmt.Sprintf("%s (%d)", base, count+1)
}

// StepInputDefault resolves which of a step's own `in` default and its
// embedded process's declared default applies to a step input, per
// cwltool's WorkflowStep.__init__ step_default handling: the step's
// binding always wins when both are present.
func StepInputDefault(stepDefault any, hasStepDefault bool, processDefault any, hasProcessDefault bool) (any, bool) {
	if hasStepDefault {
		return stepDefault, true
	}
	return processDefault, hasProcessDefault
}
