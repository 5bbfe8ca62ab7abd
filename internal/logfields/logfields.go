package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPage       = "page"
	KeyPages      = "pages"
	KeyPending    = "pending"
	KeyBatchID    = "batch_id"
	KeyTaskMode   = "task_mode"
	KeyBuildMode  = "build_mode"
	KeyPath       = "path"
	KeyPaths      = "paths"
	KeyDurationMS = "duration_ms"
	KeyCompleted  = "completed"
	KeyGate       = "gate"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Page(key string) slog.Attr       { return slog.String(KeyPage, key) }
func Pages(n int) slog.Attr           { return slog.Int(KeyPages, n) }
func Pending(n int) slog.Attr         { return slog.Int(KeyPending, n) }
func BatchID(id string) slog.Attr     { return slog.String(KeyBatchID, id) }
func TaskMode(m string) slog.Attr     { return slog.String(KeyTaskMode, m) }
func BuildMode(m string) slog.Attr    { return slog.String(KeyBuildMode, m) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Paths(n int) slog.Attr           { return slog.Int(KeyPaths, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Completed(c bool) slog.Attr      { return slog.Bool(KeyCompleted, c) }
func Gate(name string) slog.Attr      { return slog.String(KeyGate, name) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// HTTP request fields used by the preview server.
const (
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
)

func Method(m string) slog.Attr     { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr     { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr { return slog.String(KeyRemoteAddr, a) }
