package autodir

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/automountd/internal/invariant"
)

func TestMountpoint_MountAndCleanup(t *testing.T) {
	runner := newFakeRunner()
	env, _, _ := testEnv(runner)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "1", "1")

	mp := env.NewMountpoint()
	mp.Set(ctx, path)
	if err := mp.Create(); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mp.Mount(ctx, "/dev/sdb1", "-o", "errors=continue"); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if !mp.Mounted() {
		t.Fatal("Mounted() = false after Mount")
	}

	if err := mp.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if mp.Mounted() {
		t.Error("Mounted() = true after Cleanup")
	}

	calls := runner.Calls()
	want := []string{
		"/bin/mount -o ro -o errors=continue /dev/sdb1 " + path,
		"/bin/umount " + path,
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %q, want %q", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestMountpoint_MountRefusals(t *testing.T) {
	ctx := context.Background()

	t.Run("empty path", func(t *testing.T) {
		env, _, _ := testEnv(newFakeRunner())
		mp := env.NewMountpoint()
		if err := mp.Mount(ctx, "/dev/sdb1"); !invariant.Is(err) {
			t.Errorf("Mount() error = %v, want invariant violation", err)
		}
	})

	t.Run("directory not created", func(t *testing.T) {
		runner := newFakeRunner()
		env, _, _ := testEnv(runner)
		mp := env.NewMountpoint()
		mp.Set(ctx, filepath.Join(t.TempDir(), "never"))
		if err := mp.Mount(ctx, "/dev/sdb1"); !invariant.Is(err) {
			t.Errorf("Mount() error = %v, want invariant violation", err)
		}
		if len(runner.Calls()) != 0 {
			t.Errorf("tool invoked: %q", runner.Calls())
		}
	})

	t.Run("already mounted", func(t *testing.T) {
		runner := newFakeRunner()
		env, _, _ := testEnv(runner)
		mp := env.NewMountpoint()
		mp.Set(ctx, filepath.Join(t.TempDir(), "m"))
		if err := mp.Create(); err != nil {
			t.Fatal(err)
		}
		if err := mp.Mount(ctx, "/dev/sdb1"); err != nil {
			t.Fatal(err)
		}
		if err := mp.Mount(ctx, "/dev/sdb1"); !invariant.Is(err) {
			t.Errorf("second Mount() error = %v, want invariant violation", err)
		}
		if len(runner.Calls()) != 1 {
			t.Errorf("mount tool invoked %d times, want 1", len(runner.Calls()))
		}
	})
}

func TestMountpoint_MountToolFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["mount"] = true
	env, _, _ := testEnv(runner)
	ctx := context.Background()

	mp := env.NewMountpoint()
	mp.Set(ctx, filepath.Join(t.TempDir(), "m"))
	if err := mp.Create(); err != nil {
		t.Fatal(err)
	}

	err := mp.Mount(ctx, "/dev/sdb1")
	if !errors.Is(err, ErrMountFailed) {
		t.Fatalf("Mount() error = %v, want ErrMountFailed", err)
	}
	if mp.Mounted() {
		t.Error("Mounted() = true after failed mount")
	}
}

func TestMountpoint_UnmountFailureIgnored(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["unmount"] = true
	env, _, _ := testEnv(runner)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "m")

	mp := env.NewMountpoint()
	mp.Set(ctx, path)
	if err := mp.Create(); err != nil {
		t.Fatal(err)
	}
	if err := mp.Mount(ctx, "/dev/sdb1"); err != nil {
		t.Fatal(err)
	}

	err := mp.Cleanup(ctx)
	if !errors.Is(err, ErrUnmountFailed) {
		t.Errorf("Cleanup() error = %v, want ErrUnmountFailed reported", err)
	}
	if mp.Mounted() {
		t.Error("Mounted() = true after Cleanup")
	}
	if mp.Directory().State() != NotCreated {
		t.Errorf("directory state = %v, want %v", mp.Directory().State(), NotCreated)
	}
}

func TestMountpoint_SetOverwriteIsBug(t *testing.T) {
	runner := newFakeRunner()
	env, log, _ := testEnv(runner)
	ctx := context.Background()
	first := filepath.Join(t.TempDir(), "first")

	mp := env.NewMountpoint()
	mp.Set(ctx, first)
	if err := mp.Create(); err != nil {
		t.Fatal(err)
	}
	mp.Set(ctx, filepath.Join(t.TempDir(), "second"))

	if log.ErrorCount() != 1 {
		t.Errorf("logged %d errors, want 1 bug report", log.ErrorCount())
	}
	if mp.Path() == first {
		t.Error("Path() unchanged after Set")
	}
	if env.NewDirectory(first).Probe(false) {
		t.Error("previous mountpoint directory not cleaned up")
	}
}

func TestMountpoint_ProbeExternal(t *testing.T) {
	runner := newFakeRunner()
	env, _, _ := testEnv(runner)
	ctx := context.Background()
	path := t.TempDir()

	mp := env.NewMountpoint()
	mp.Set(ctx, path)
	if !mp.Probe(ctx, true) {
		t.Fatal("Probe() = false, want mounted")
	}
	if mp.Directory().State() != External {
		t.Errorf("state = %v, want %v", mp.Directory().State(), External)
	}

	// External mounts are forgotten without running umount.
	if err := mp.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	for _, c := range runner.Calls() {
		if c == "/bin/umount "+path {
			t.Errorf("umount invoked on external mountpoint")
		}
	}
}

func TestMountpoint_ProbeNotMounted(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["mountpoint"] = true
	env, _, _ := testEnv(runner)
	ctx := context.Background()

	mp := env.NewMountpoint()
	mp.Set(ctx, t.TempDir())
	if mp.Probe(ctx, false) {
		t.Error("Probe() = true, want false when mountpoint tool fails")
	}
}
