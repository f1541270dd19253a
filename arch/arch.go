package arch

import (
	"fmt"
	"sort"
	"strings"
)

// Architecture is the canonical identifier used when comparing the
// provisioning target against the host and when locating emulator binaries.
type Architecture string

const (
	X86_64  Architecture = "x86_64"
	X86     Architecture = "x86"
	ARM     Architecture = "arm"
	AArch64 Architecture = "aarch64"
	PPC64LE Architecture = "ppc64le"
	RISCV64 Architecture = "riscv64"
	S390X   Architecture = "s390x"
)

// Supported returns the full list of supported architectures.
func Supported() []Architecture {
	return []Architecture{
		X86_64,
		X86,
		ARM,
		AArch64,
		PPC64LE,
		RISCV64,
		S390X,
	}
}

// IsValid reports whether a matches a supported architecture value.
func (a Architecture) IsValid() bool {
	switch a {
	case X86_64, X86, ARM, AArch64, PPC64LE, RISCV64, S390X:
		return true
	default:
		return false
	}
}

// String returns the architecture as string.
func (a Architecture) String() string {
	return string(a)
}

// QemuName returns the architecture component of the user-mode emulator
// binary name (qemu-<name>-static). The x86 family uses the QEMU spelling
// rather than the canonical one.
func (a Architecture) QemuName() string {
	switch a {
	case X86:
		return "i386"
	default:
		return string(a)
	}
}

// Parse returns the canonical Architecture for the provided string or an
// error if unsupported.
func Parse(value string) (Architecture, error) {
	if arch := Normalize(value); arch != "" {
		return arch, nil
	}
	return "", fmt.Errorf("unsupported architecture %q (supported: %s)", value, strings.Join(supportedStrings(), ", "))
}

// MustParse is like Parse but panics on error.
func MustParse(value string) Architecture {
	arch, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return arch
}

// Normalize maps a possibly ambiguous string into a canonical Architecture.
// Returns "" when the string cannot be normalized. The alias sets follow the
// spellings used by Alpine repositories, uname, and Debian package names, so
// "x86" and "i386" collapse to the same identifier, as do "armhf" and
// "armv7".
func Normalize(value string) Architecture {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case string(X86_64), "x86-64", "amd64":
		return X86_64
	case string(X86), "i386", "i486", "i586", "i686", "386":
		return X86
	case string(ARM), "armel", "armhf", "armv5", "armv6", "armv7", "armv7l", "armv7h":
		return ARM
	case string(AArch64), "arm64", "armv8", "armv8l":
		return AArch64
	case string(PPC64LE), "ppc64el", "powerpc64le":
		return PPC64LE
	case string(RISCV64):
		return RISCV64
	case string(S390X):
		return S390X
	default:
		return ""
	}
}

func supportedStrings() []string {
	all := Supported()
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return out
}
