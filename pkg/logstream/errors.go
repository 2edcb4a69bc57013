package logstream

import "fmt"

// ErrorKind classifies a log stream readiness failure.
type ErrorKind uint8

const (
	KindInvalidURL ErrorKind = iota + 1
	KindMissingEngine
	KindOnloadInactive
	KindMissingSocketPath
	KindSocketUnavailable
	KindInterfaceUnavailable
)

// Error is returned by ValidateReady and SpawnStream.
type Error struct {
	Kind ErrorKind
	URL  string
	Path string // socket path, or the log path name for KindInvalidURL
	Err  error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindInvalidURL:
		msg = fmt.Sprintf("invalid websocket url '%s' for %s path", e.URL, e.Path)
	case KindMissingEngine:
		msg = "kernel bypass path missing engine selection"
	case KindOnloadInactive:
		msg = "openonload engine selected but Onload runtime is inactive; ensure /dev/onload is present and launch via onload preload"
	case KindMissingSocketPath:
		msg = "missing kernel bypass socket path"
	case KindSocketUnavailable:
		msg = fmt.Sprintf("kernel bypass socket unavailable at '%s' (expected external AF_XDP/DPDK bridge)", e.Path)
	case KindInterfaceUnavailable:
		msg = "kernel bypass interface unavailable"
	default:
		msg = "log stream unavailable"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can test errors.Is(err, &Error{Kind: k}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
