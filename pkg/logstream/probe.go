package logstream

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/features"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// OnloadDevice is the character device the Onload kernel module exposes.
const OnloadDevice = "/dev/onload"

// onloadEnv abstracts the process environment for the Onload probe.
type onloadEnv struct {
	deviceExists func(string) bool
	getenv       func(string) string
}

var hostEnv = onloadEnv{
	deviceExists: func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	},
	getenv: os.Getenv,
}

// onloadActive reports whether the process runs under the Onload preload:
// the device exists and either LD_PRELOAD names libonload or
// ONLOAD_PRELOAD is set.
func (e onloadEnv) onloadActive() bool {
	if !e.deviceExists(OnloadDevice) {
		return false
	}
	if strings.Contains(e.getenv("LD_PRELOAD"), "libonload") {
		return true
	}
	return strings.TrimSpace(e.getenv("ONLOAD_PRELOAD")) != ""
}

// probeBridge checks that the bypass bridge socket exists and accepts a
// connection.
func probeBridge(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil || st.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return &Error{Kind: KindSocketUnavailable, Path: path}
	}
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return &Error{Kind: KindSocketUnavailable, Path: path, Err: err}
	}
	conn.Close()
	return nil
}

// probeXDP checks that iface exists and the kernel can load XDP programs.
// Only used when an AF_XDP interface is configured.
func probeXDP(iface string) error {
	if _, err := netlink.LinkByName(iface); err != nil {
		return fmt.Errorf("kernel bypass interface %q: %w", iface, err)
	}
	if err := features.HaveProgramType(ebpf.XDP); err != nil {
		return fmt.Errorf("kernel lacks XDP support for AF_XDP on %q: %w", iface, err)
	}
	return nil
}
