// Package preflight holds the checks that must pass before a provisioning
// run performs any side effect: elevated privilege and a usable host network.
package preflight

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/vishvananda/netlink"

	"alpenroot/internal/logging"
)

// PrivilegeError reports that the process lacks the elevated privilege
// provisioning requires.
type PrivilegeError struct {
	UID int
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("provisioning requires root, running as uid %d", e.UID)
}

// NetworkError reports that the host has no route to fetch bootstrap
// artifacts over.
type NetworkError struct {
	Reason string
}

func (e *NetworkError) Error() string {
	return "host network preflight: " + e.Reason
}

// RequireRoot fails unless the process runs with euid 0. Checked before any
// other step so a permission failure cannot leave partial state behind.
func RequireRoot() error {
	if uid := os.Geteuid(); uid != 0 {
		return &PrivilegeError{UID: uid}
	}
	return nil
}

// Checker verifies host readiness. The netlink calls are isolated behind
// function fields so tests can substitute them.
type Checker struct {
	Logger *slog.Logger

	linkList  func() ([]netlink.Link, error)
	routeList func() ([]netlink.Route, error)
}

// CheckNetwork verifies that at least one non-loopback link is up and a
// default route exists. Bootstrap fetches fail closed with no retry, so a
// dead network is caught here instead of mid-download.
func (c *Checker) CheckNetwork() error {
	logger := logging.Ensure(c.Logger).With("component", "preflight")

	links, err := c.links()
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}

	linkUp := false
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil {
			continue
		}
		if attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		if attrs.Flags&net.FlagUp != 0 {
			linkUp = true
			logger.Debug("found active link", "name", attrs.Name)
			break
		}
	}
	if !linkUp {
		return &NetworkError{Reason: "no non-loopback link is up"}
	}

	routes, err := c.routes()
	if err != nil {
		return fmt.Errorf("list routes: %w", err)
	}
	for _, route := range routes {
		if route.Dst == nil || route.Dst.IP.IsUnspecified() {
			logger.Debug("found default route", "gateway", route.Gw)
			return nil
		}
	}
	return &NetworkError{Reason: "no default route configured"}
}

func (c *Checker) links() ([]netlink.Link, error) {
	if c.linkList != nil {
		return c.linkList()
	}
	return netlink.LinkList()
}

func (c *Checker) routes() ([]netlink.Route, error) {
	if c.routeList != nil {
		return c.routeList()
	}
	return netlink.RouteList(nil, netlink.FAMILY_V4)
}
