package logstream

import "strings"

// Engine is the kernel-bypass packet engine.
type Engine string

const (
	EngineAFXDP      Engine = "af_xdp"
	EngineDPDK       Engine = "dpdk"
	EngineOpenOnload Engine = "openonload"
	// EngineExternal hands packet I/O to an external AF_XDP or DPDK bridge.
	EngineExternal Engine = "af_xdp_or_dpdk_external"
)

// ParseEngine accepts an engine name, case-insensitive. "onload" is an
// alias for openonload.
func ParseEngine(s string) (Engine, bool) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineAFXDP, EngineDPDK, EngineOpenOnload, EngineExternal:
		return e, true
	case "onload":
		return EngineOpenOnload, true
	default:
		return "", false
	}
}

// usesBridge reports whether the engine delivers events through the
// external Unix-socket bridge rather than the websocket.
func (e Engine) usesBridge() bool {
	switch e {
	case EngineAFXDP, EngineDPDK, EngineExternal:
		return true
	default:
		return false
	}
}
