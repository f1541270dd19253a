package arch

import "testing"

func TestNormalizeAliases(t *testing.T) {
	cases := map[string]Architecture{
		"x86_64":  X86_64,
		"amd64":   X86_64,
		"x86-64":  X86_64,
		"x86":     X86,
		"i386":    X86,
		"i486":    X86,
		"i686":    X86,
		"armhf":   ARM,
		"armv6":   ARM,
		"armv7":   ARM,
		"armv7l":  ARM,
		"arm64":   AArch64,
		"aarch64": AArch64,
		"ppc64el": PPC64LE,
		"ppc64le": PPC64LE,
		"riscv64": RISCV64,
		"s390x":   S390X,
		" ARM64 ": AArch64,
	}

	for value, want := range cases {
		if got := Normalize(value); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", value, got, want)
		}
	}
}

func TestNormalizeAliasFamiliesCollapse(t *testing.T) {
	if Normalize("x86") != Normalize("i386") {
		t.Error("x86 and i386 should normalize identically")
	}
	if Normalize("armhf") != Normalize("armv7") {
		t.Error("armhf and armv7 should normalize identically")
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	for _, value := range []string{"", "sparc", "mips", "vax"} {
		if got := Normalize(value); got != "" {
			t.Errorf("Normalize(%q) = %q, want empty", value, got)
		}
	}
}

func TestParseUnsupported(t *testing.T) {
	if _, err := Parse("sparc"); err == nil {
		t.Error("expected error for unsupported architecture")
	}
}

func TestQemuName(t *testing.T) {
	cases := map[Architecture]string{
		X86:     "i386",
		X86_64:  "x86_64",
		ARM:     "arm",
		AArch64: "aarch64",
	}
	for a, want := range cases {
		if got := a.QemuName(); got != want {
			t.Errorf("%s.QemuName() = %q, want %q", a, got, want)
		}
	}
}

func TestSupportedAllValid(t *testing.T) {
	for _, a := range Supported() {
		if !a.IsValid() {
			t.Errorf("Supported() contains invalid architecture %q", a)
		}
	}
	if Architecture("sparc").IsValid() {
		t.Error("sparc should not be valid")
	}
}
