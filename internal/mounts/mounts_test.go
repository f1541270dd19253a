package mounts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

type fakeMounter struct {
	mounted map[string]bool
	calls   []mountCall
}

type mountCall struct {
	source string
	target string
	fstype string
	flags  uintptr
}

func (f *fakeMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	f.calls = append(f.calls, mountCall{source: source, target: target, fstype: fstype, flags: flags})
	return nil
}

func (f *fakeMounter) Mounted(target string) (bool, error) {
	return f.mounted[target], nil
}

func TestBindOrderAndFlags(t *testing.T) {
	root := t.TempDir()
	bindDir := t.TempDir()

	mounter := &fakeMounter{}
	binder := &Binder{Mounter: mounter}

	if err := binder.Bind(root, DefaultBindings(bindDir)); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	if len(mounter.calls) != 5 {
		t.Fatalf("expected 5 mounts, got %d", len(mounter.calls))
	}

	wantTargets := []string{
		filepath.Join(root, "proc"),
		filepath.Join(root, "sys"),
		filepath.Join(root, "dev"),
		filepath.Join(root, "run"),
		filepath.Join(root, strings.TrimPrefix(bindDir, "/")),
	}
	for i, call := range mounter.calls {
		if call.target != wantTargets[i] {
			t.Errorf("mount %d target = %q, want %q", i, call.target, wantTargets[i])
		}
		if _, err := os.Stat(call.target); err != nil {
			t.Errorf("mount point %s was not created: %v", call.target, err)
		}
	}

	if mounter.calls[0].fstype != "proc" {
		t.Errorf("first mount should be proc, got %q", mounter.calls[0].fstype)
	}
	for _, call := range mounter.calls[1:] {
		if call.flags&unix.MS_BIND == 0 || call.flags&unix.MS_REC == 0 {
			t.Errorf("mount of %s should be a recursive bind, flags=%#x", call.source, call.flags)
		}
	}
}

func TestBindSkipsAlreadyMountedTargets(t *testing.T) {
	root := t.TempDir()
	procTarget := filepath.Join(root, "proc")
	if err := os.MkdirAll(procTarget, 0o755); err != nil {
		t.Fatal(err)
	}

	mounter := &fakeMounter{mounted: map[string]bool{procTarget: true}}
	binder := &Binder{Mounter: mounter}

	if err := binder.Bind(root, DefaultBindings("")); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	for _, call := range mounter.calls {
		if call.target == procTarget {
			t.Error("already-mounted proc target was re-mounted")
		}
	}
}

func TestBindToleratesExistingTargetDirectory(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"proc", "sys", "dev", "run"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	binder := &Binder{Mounter: &fakeMounter{}}
	if err := binder.Bind(root, DefaultBindings("")); err != nil {
		t.Fatalf("bind failed with pre-existing mount points: %v", err)
	}
}

func TestBindFailsOnMissingSource(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	binder := &Binder{Mounter: &fakeMounter{}}
	err := binder.Bind(root, []Binding{{Source: missing, Target: "mnt", Recursive: true}})
	if err == nil {
		t.Fatal("expected error for missing bind source")
	}
}

func TestUnescapeMountPath(t *testing.T) {
	if got := unescapeMountPath(`/mnt/with\040space`); got != "/mnt/with space" {
		t.Errorf("unescapeMountPath = %q", got)
	}
	if got := unescapeMountPath("/plain"); got != "/plain" {
		t.Errorf("unescapeMountPath = %q", got)
	}
}

func TestUnixMounterMountedParsesTable(t *testing.T) {
	table := filepath.Join(t.TempDir(), "mounts")
	content := "proc /alpine/proc proc rw 0 0\n/dev/sda1 /alpine/dev ext4 rw 0 0\n"
	if err := os.WriteFile(table, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	mounter := UnixMounter{MountsFile: table}
	mounted, err := mounter.Mounted("/alpine/proc")
	if err != nil {
		t.Fatal(err)
	}
	if !mounted {
		t.Error("/alpine/proc should be reported mounted")
	}
	mounted, err = mounter.Mounted("/alpine/run")
	if err != nil {
		t.Fatal(err)
	}
	if mounted {
		t.Error("/alpine/run should not be reported mounted")
	}
}
