package glaphica

import "os"

// Diagnostic environment switches recognized by the engine. All default off
// and never change engine behavior -- they only gate which diagnostic
// categories are allowed to produce output.
const (
	EnvBrushTrace      = "BRUSH_TRACE"
	EnvRenderTreeTrace = "RENDER_TREE_TRACE"
	EnvRenderTreeInvar = "RENDER_TREE_INVARIANTS"
	EnvPerfLog         = "PERF_LOG"
	EnvFrameSchedTrace = "FRAME_SCHEDULER_TRACE"
	EnvQuiet           = "QUIET"
)

// TraceEnabled reports whether a named diagnostic category is enabled.
// QUIET overrides every other switch.
func TraceEnabled(name string) bool {
	if os.Getenv(EnvQuiet) != "" {
		return false
	}
	return os.Getenv(name) != ""
}

// InvariantsEnabled reports whether debug-only invariant assertions
// (semantic-hash/revision checks, lock-ordering checks) should run.
// Distinct from TraceEnabled because QUIET must not silence a panic path,
// only log output.
func InvariantsEnabled() bool {
	return os.Getenv(EnvRenderTreeInvar) != ""
}
