// Package transfer implements the two transports the dispatcher fans out to:
// archive-sync over SSH (rsync) for remote filesystem destinations and a
// diff-based object sync for S3 destinations.
package transfer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner executes an external command and returns its combined output. It
// exists so tests can intercept the rsync invocation.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Rsync mirrors a local directory tree to a remote path using archive-sync
// semantics: recurse, preserve timestamps and permissions, compress in
// transit. Nothing is deleted at the destination.
type Rsync struct {
	Host    string
	User    string
	KeyPath string
	DryRun  bool

	runner Runner
}

// RsyncOption configures an Rsync transport.
type RsyncOption func(*Rsync)

// WithRunner replaces the command runner, primarily for tests.
func WithRunner(runner Runner) RsyncOption {
	return func(r *Rsync) {
		r.runner = runner
	}
}

// WithDryRun makes Sync pass --dry-run to rsync so no remote state changes.
func WithDryRun(dryRun bool) RsyncOption {
	return func(r *Rsync) {
		r.DryRun = dryRun
	}
}

// NewRsync creates an archive-sync transport for one remote user/host using
// the private key at keyPath.
func NewRsync(host, user, keyPath string, opts ...RsyncOption) *Rsync {
	r := &Rsync{
		Host:    host,
		User:    user,
		KeyPath: keyPath,
		runner:  execRunner{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync mirrors srcDir to remotePath on the transport's host. The trailing
// slash on the source makes rsync copy directory contents rather than the
// directory itself, matching the deployed layout.
func (r *Rsync) Sync(ctx context.Context, srcDir, remotePath string) error {
	logger := zerolog.Ctx(ctx)

	sshCommand := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -o BatchMode=yes", r.KeyPath)

	args := []string{"-az"}
	if r.DryRun {
		args = append(args, "--dry-run", "--itemize-changes")
	}
	args = append(args,
		"-e", sshCommand,
		strings.TrimSuffix(srcDir, "/")+"/",
		fmt.Sprintf("%s@%s:%s", r.User, r.Host, remotePath),
	)

	logger.Info().
		Str("host", r.Host).
		Str("src", srcDir).
		Str("dst", remotePath).
		Bool("dry_run", r.DryRun).
		Msg("Starting archive sync")

	output, err := r.runner.Run(ctx, "rsync", args...)
	if err != nil {
		return fmt.Errorf("rsync to %s:%s failed: %w: %s",
			r.Host, remotePath, err, strings.TrimSpace(string(output)))
	}

	if out := strings.TrimSpace(string(output)); out != "" {
		logger.Debug().Str("output", out).Msg("rsync output")
	}
	logger.Info().Str("host", r.Host).Str("dst", remotePath).Msg("Archive sync complete")
	return nil
}
