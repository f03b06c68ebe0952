package replay

import (
	"fmt"
	"io"
	"reflect"
)

// CompareError reports a golden-trace mismatch from CompareSemanticEvents.
type CompareError struct {
	Reason   string
	Expected int
	Actual   int
	Index    int
}

func (e *CompareError) Error() string {
	switch e.Reason {
	case "count_mismatch":
		return fmt.Sprintf("replay: event count mismatch: expected %d, got %d", e.Expected, e.Actual)
	case "event_mismatch":
		return fmt.Sprintf("replay: event %d differs", e.Index)
	default:
		return fmt.Sprintf("replay: compare failed: %s", e.Reason)
	}
}

// CompareSemanticEvents reports whether expected and actual are the same
// sequence of events, ignoring DebugWallTimeMicros (wall-clock timing is
// not part of a run's semantic behavior, only diagnostic metadata), so a
// replayed run can be compared byte-for-byte against a golden trace
// despite running at a different wall-clock speed.
func CompareSemanticEvents(expected, actual []OutputEvent) error {
	if len(expected) != len(actual) {
		return &CompareError{Reason: "count_mismatch", Expected: len(expected), Actual: len(actual)}
	}
	for i := range expected {
		left, right := expected[i], actual[i]
		left.DebugWallTimeMicros = nil
		right.DebugWallTimeMicros = nil
		if !reflect.DeepEqual(left, right) {
			return &CompareError{Reason: "event_mismatch", Index: i}
		}
	}
	return nil
}

// CompareOutputStreams reads two full JSONL traces, validates each
// independently, and then checks they are semantically identical. It is
// the regression-test entry point: a recorded golden trace compared
// against a freshly recorded trace from the same scenario.
func CompareOutputStreams(expected, actual io.Reader) error {
	expectedEvents, err := ReadJSONLEvents(expected)
	if err != nil {
		return fmt.Errorf("replay: read expected trace: %w", err)
	}
	actualEvents, err := ReadJSONLEvents(actual)
	if err != nil {
		return fmt.Errorf("replay: read actual trace: %w", err)
	}
	if err := ValidateEventStream(expectedEvents); err != nil {
		return fmt.Errorf("replay: expected trace failed validation: %w", err)
	}
	if err := ValidateEventStream(actualEvents); err != nil {
		return fmt.Errorf("replay: actual trace failed validation: %w", err)
	}
	return CompareSemanticEvents(expectedEvents, actualEvents)
}
