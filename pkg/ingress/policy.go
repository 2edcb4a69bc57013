package ingress

import (
	"errors"
	"fmt"
	"log/slog"
)

// Set holds the constructed port for each mode. Ports are registered by
// the daemon at startup.
type Set struct {
	ports map[Mode]Port
}

// NewSet returns an empty port set.
func NewSet() *Set {
	return &Set{ports: make(map[Mode]Port, 3)}
}

// Register adds or replaces the port for mode.
func (s *Set) Register(mode Mode, p Port) {
	s.ports[mode] = p
}

// Get returns the port registered for mode.
func (s *Set) Get(mode Mode) (Port, error) {
	if p, ok := s.ports[mode]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown network stack mode %q (valid: fpga, kernel_bypass, standard_tcp)", mode)
}

// Gate validates exactly the port selected by mode and returns it. There
// is no fallback: a selected path that is not ready aborts startup.
func (s *Set) Gate(mode Mode) (Port, error) {
	p, err := s.Get(mode)
	if err != nil {
		return nil, err
	}
	if err := p.ValidateReady(); err != nil {
		return nil, &ReadinessError{Mode: mode, Err: err}
	}
	return p, nil
}

// failoverOrder lists the modes tried after mode, fastest first.
func failoverOrder(mode Mode) []Mode {
	switch mode {
	case ModeFPGA:
		return []Mode{ModeFPGA, ModeKernelBypass, ModeStandardTCP}
	case ModeKernelBypass:
		return []Mode{ModeKernelBypass, ModeStandardTCP}
	default:
		return []Mode{ModeStandardTCP}
	}
}

// Failover validates mode and, when it is not ready, each slower mode in
// turn. It returns the first ready port and the mode it serves. The error
// joins every readiness failure when nothing is ready.
func (s *Set) Failover(mode Mode) (Port, Mode, error) {
	var errs []error
	for _, m := range failoverOrder(mode) {
		p, err := s.Gate(m)
		if err == nil {
			if m != mode {
				slog.Warn("ingress failed over to slower path", "selected", mode, "active", m)
			}
			return p, m, nil
		}
		slog.Warn("ingress path not ready", "mode", m, "err", err)
		errs = append(errs, err)
	}
	return nil, mode, errors.Join(errs...)
}

// Describe renders the operator-facing summary of the active path.
func Describe(mode Mode, engine, vendor string) string {
	switch mode {
	case ModeFPGA:
		return fmt.Sprintf("fpga path active via %s NIC (hardware timestamp and deterministic queue)", vendor)
	case ModeKernelBypass:
		return fmt.Sprintf("kernel tcp bypass active via %s (userspace packet path)", engine)
	default:
		return "kernel tcp bypass disabled (standard kernel socket path)"
	}
}
