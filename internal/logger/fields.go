package logger

// Standard field names for structured logging.
const (
	FieldComponent = "component"
	FieldFrame     = "frame"
	FieldTotal     = "total"
	FieldCount     = "count"
	FieldState     = "state"
	FieldPath      = "path"
	FieldRunID     = "run_id"

	FieldDurationMS = "duration_ms"
	FieldFPS        = "fps"

	// Drum calibration
	FieldCenterX = "center_x"
	FieldCenterY = "center_y"
	FieldRadius  = "radius_px"
	FieldPxPerMM = "px_per_mm"
	FieldSource  = "source"
)
