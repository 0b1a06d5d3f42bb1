// Package mount spawns the external prefix-mount helper process: an
// OS-level utility, not reimplemented here, that overlays a prefix's
// var/lib/mmpack-installed tree onto a mount point for tools that expect a
// package's files merged into a single filesystem view. It follows
// sysdep.PacmanProber's cygpathRoot pattern of shelling a short-lived
// external command and capturing its result.
package mount

import (
	"context"
	"os/exec"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// Helper locates and invokes the prefix-mount helper binary.
type Helper struct {
	// Path to the helper executable; defaults to "mmpack-mount-helper"
	// resolved via $PATH when empty.
	Path string
}

func (h *Helper) binary() string {
	if h.Path != "" {
		return h.Path
	}
	return "mmpack-mount-helper"
}

// Mount spawns the helper to bind prefixRoot onto mountPoint, the Go
// equivalent of invoking the prefix-mount helper with ("mount", prefix,
// mountpoint) and waiting for it to complete. The helper itself decides how
// the bind is implemented (bind mount, FUSE overlay, drive-letter
// substitution on Windows, ...); this package only spawns and supervises
// it.
func (h *Helper) Mount(ctx context.Context, prefixRoot, mountPoint string) error {
	cmd := exec.CommandContext(ctx, h.binary(), "mount", prefixRoot, mountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		return mmerrors.New("mount.Mount", mmerrors.IO, prefixRoot, wrapOutput(err, out))
	}
	return nil
}

// Unmount spawns the helper to tear down a prior Mount.
func (h *Helper) Unmount(ctx context.Context, mountPoint string) error {
	cmd := exec.CommandContext(ctx, h.binary(), "unmount", mountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		return mmerrors.New("mount.Unmount", mmerrors.IO, mountPoint, wrapOutput(err, out))
	}
	return nil
}

func wrapOutput(err error, out []byte) error {
	if len(out) == 0 {
		return err
	}
	return &outputError{err: err, output: string(out)}
}

type outputError struct {
	err    error
	output string
}

func (e *outputError) Error() string { return e.err.Error() + ": " + e.output }
func (e *outputError) Unwrap() error { return e.err }
