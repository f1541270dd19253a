package arch

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Host returns the canonical architecture of the running kernel, as reported
// by uname(2).
func Host() (Architecture, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}
	machine := unix.ByteSliceToString(uts.Machine[:])
	hostArch, err := Parse(machine)
	if err != nil {
		return "", fmt.Errorf("host architecture: %w", err)
	}
	return hostArch, nil
}
