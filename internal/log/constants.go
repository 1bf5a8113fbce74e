package log

// Attribute keys for structured log records.
const (
	Args     = "args"
	Cmd      = "cmd"
	Dir      = "dir"
	Duration = "duration"
	Error    = "error"
	Event    = "event"
	Marker   = "marker"
	ModTime  = "mod_time"
	Number   = "number"
	Path     = "path"
	Since    = "since"
	Step     = "step"
)
