package rootfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	return f.err
}

func testParams(root string) Params {
	return Params{
		Root:         root,
		Branch:       "v3.20",
		Mirror:       "https://dl-cdn.alpinelinux.org/alpine/",
		ApkTool:      "/tmp/apk.static",
		BasePackages: []string{"alpine-base"},
	}
}

func TestInitializeWritesRepositories(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	init := &Initializer{Runner: runner}

	params := testParams(root)
	params.ExtraRepos = []string{"https://example.org/custom/repo"}

	if err := init.Initialize(context.Background(), params); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "etc", "apk", "repositories"))
	if err != nil {
		t.Fatal(err)
	}
	want := "https://dl-cdn.alpinelinux.org/alpine/v3.20/main\n" +
		"https://dl-cdn.alpinelinux.org/alpine/v3.20/community\n" +
		"https://example.org/custom/repo\n"
	if string(data) != want {
		t.Errorf("repositories file:\n%s\nwant:\n%s", data, want)
	}
}

func TestInitializeIsIdempotentForRepositories(t *testing.T) {
	root := t.TempDir()
	init := &Initializer{Runner: &fakeRunner{}}
	params := testParams(root)

	if err := init.Initialize(context.Background(), params); err != nil {
		t.Fatalf("first initialize failed: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(root, "etc", "apk", "repositories"))
	if err != nil {
		t.Fatal(err)
	}

	if err := init.Initialize(context.Background(), params); err != nil {
		t.Fatalf("second initialize failed: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(root, "etc", "apk", "repositories"))
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Errorf("repeated initialization changed repositories file:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestInitializeImportsKeys(t *testing.T) {
	root := t.TempDir()
	keyDir := t.TempDir()
	keyPath := filepath.Join(keyDir, "alpine-devel@lists.alpinelinux.org-4a6a0840.rsa.pub")
	if err := os.WriteFile(keyPath, []byte("-----BEGIN PUBLIC KEY-----\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	init := &Initializer{Runner: &fakeRunner{}}
	params := testParams(root)
	params.KeyPaths = []string{keyPath}

	if err := init.Initialize(context.Background(), params); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	imported := filepath.Join(root, "etc", "apk", "keys", filepath.Base(keyPath))
	info, err := os.Stat(imported)
	if err != nil {
		t.Fatalf("key not imported: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("imported key mode = %o, want 644", info.Mode().Perm())
	}
}

func TestInitializeApkInvocation(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	init := &Initializer{Runner: runner}

	params := testParams(root)
	params.ApkArch = "aarch64"
	params.BasePackages = []string{"alpine-base", "ca-certificates"}

	if err := init.Initialize(context.Background(), params); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 apk invocation, got %d", len(runner.calls))
	}
	call := strings.Join(runner.calls[0], " ")
	want := "/tmp/apk.static --root " + root + " --update-cache --initdb --arch aarch64 add alpine-base ca-certificates"
	if call != want {
		t.Errorf("apk invocation:\n%s\nwant:\n%s", call, want)
	}
}

func TestInitializeOmitsArchWithoutEmulation(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	init := &Initializer{Runner: runner}

	if err := init.Initialize(context.Background(), testParams(root)); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	call := strings.Join(runner.calls[0], " ")
	if strings.Contains(call, "--arch") {
		t.Errorf("apk invocation should not carry --arch: %s", call)
	}
}

func TestInitializePackageInstallError(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{err: errors.New("exit status 1")}
	init := &Initializer{Runner: runner}

	err := init.Initialize(context.Background(), testParams(root))
	var installErr *PackageInstallError
	if !errors.As(err, &installErr) {
		t.Fatalf("expected PackageInstallError, got %v", err)
	}
}

func TestInitializeRejectsRelativeRoot(t *testing.T) {
	init := &Initializer{Runner: &fakeRunner{}}
	if err := init.Initialize(context.Background(), testParams("relative/root")); err == nil {
		t.Fatal("expected error for relative root path")
	}
}
