package tracing

// Span attribute keys for registration runs.
const (
	AttrJobID          = "registration.job_id"
	AttrPresetID       = "registration.preset_id"
	AttrParameterFiles = "registration.parameter_files"
	AttrWorkDir        = "registration.work_dir"
	AttrState          = "registration.state"
	AttrTool           = "process.tool"
	AttrExitCode       = "process.exit_code"
	AttrOutputLines    = "process.output_lines"
	AttrArtifact       = "import.artifact"
	AttrErrorMessage   = "error.message"
)

// Span names.
const (
	SpanRun     = "registration.run"
	SpanPrepare = "registration.prepare"
	SpanProcess = "registration.process."
	SpanImport  = "registration.import"
	SpanCleanup = "registration.cleanup"
)

// Event names.
const (
	EventCancelRequested = "cancel.requested"
	EventFastPath        = "transform.linear_fast_path"
	EventArtifactLoaded  = "artifact.loaded"
)
