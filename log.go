package atmt

import "github.com/grailbio/go-dicom/dicomlog"

// logf emits a leveled, automaton-labeled log line through dicomlog, the
// same leveled logger the teacher's statemachine package uses. Level 0 is
// always printed; higher levels are increasingly verbose trace output.
func logf(level int, label string, format string, args ...any) {
	dicomlog.Vprintf(level, "atmt(%s): "+format, append([]any{label}, args...)...)
}
