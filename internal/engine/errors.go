package engine

import "fmt"

// PartialBatchError reports per-item failures inside a pipeline stage. The
// stage keeps going past failed items; the error carries the tally so the
// run can be marked degraded without losing the successful work.
type PartialBatchError struct {
	Stage  string
	Failed int
	Total  int
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("stage %s: %d of %d items failed", e.Stage, e.Failed, e.Total)
}
