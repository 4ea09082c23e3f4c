package log

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldRunID     = "run_id"

	FieldScript     = "script"
	FieldFrame      = "frame"
	FieldSink       = "sink"
	FieldPath       = "path"
	FieldResolution = "resolution"
	FieldFPS        = "fps"
	FieldFrames     = "frames"
	FieldColorspace = "colorspace"
	FieldDepth      = "depth"

	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
