// Package layer builds Lambda dependency layers.
//
// A layer is built from a lock file and its manifest. Dependencies are
// installed inside a build container matching the Lambda runtime, file
// timestamps are reset, and the result is zipped. The build directory is
// named after a hash of the inputs, so an unchanged lock file reuses the
// existing archive.
package layer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	dserrors "github.com/systmms/idrotate/internal/errors"
	"github.com/systmms/idrotate/internal/logging"
	"github.com/systmms/idrotate/pkg/exec"
)

// recipeVersion is part of the content hash. Bump it when the build steps
// change so existing archives are rebuilt.
const recipeVersion = "idrotate-layer-v1"

// Packager builds layer archives
type Packager struct {
	buildRoot string
	executor  exec.CommandExecutor
	runner    ContainerRunner
	logger    *logging.Logger
}

// Option configures a Packager
type Option func(*Packager)

// WithBuildRoot sets the directory holding build output. Default ./builds.
func WithBuildRoot(dir string) Option {
	return func(p *Packager) {
		p.buildRoot = dir
	}
}

// WithExecutor sets the host command executor
func WithExecutor(e exec.CommandExecutor) Option {
	return func(p *Packager) {
		p.executor = e
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(p *Packager) {
		p.logger = l
	}
}

// NewPackager creates a Packager that installs through runner
func NewPackager(runner ContainerRunner, opts ...Option) *Packager {
	p := &Packager{
		buildRoot: "./builds",
		executor:  exec.DefaultExecutor(),
		runner:    runner,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package builds the layer described by q and returns the archive path
func (p *Packager) Package(ctx context.Context, q Query) (string, error) {
	workflow, err := NewWorkflow(q.DependencyManager)
	if err != nil {
		return "", dserrors.ConfigError{
			Field:      "dependency_manager",
			Value:      q.DependencyManager,
			Message:    err.Error(),
			Suggestion: "Use poetry, npm or yarn",
		}
	}

	manifest := filepath.Join(filepath.Dir(q.DependencyLockFile), workflow.Manifest())
	if _, err := os.Stat(manifest); err != nil {
		return "", dserrors.ConfigError{
			Field:      "dependency_lock_file",
			Value:      q.DependencyLockFile,
			Message:    fmt.Sprintf("dependency file not found: %s", manifest),
			Suggestion: fmt.Sprintf("Place %s next to the lock file", workflow.Manifest()),
		}
	}

	script := installScript(q.PrePackageCommands, workflow.InstallCommand(q.Runtime))
	recipe := strings.Join([]string{recipeVersion, q.DependencyManager, q.Runtime, q.Image(), script}, "\n")
	hash, err := contentHash(recipe, q.DependencyLockFile)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", q.DependencyLockFile, err)
	}

	buildDir, err := filepath.Abs(filepath.Join(p.buildRoot, "lambda-layer-deps", hash))
	if err != nil {
		return "", err
	}
	archive := buildDir + ".zip"
	if _, err := os.Stat(archive); err == nil {
		p.logger.Info("Archive file already exists: %s, skipping build step", archive)
		return archive, nil
	}

	runtimeDir := workflow.RuntimeDir(buildDir, q.Runtime)
	p.logger.Debug("Creating runtime directory: %s", runtimeDir)
	if err := os.MkdirAll(runtimeDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create runtime directory: %w", err)
	}
	for _, src := range []string{q.DependencyLockFile, manifest} {
		if err := copyFile(src, filepath.Join(runtimeDir, filepath.Base(src))); err != nil {
			return "", fmt.Errorf("failed to copy %s: %w", src, err)
		}
	}

	if err := workflow.PreInstall(ctx, p.executor, runtimeDir); err != nil {
		return "", err
	}

	p.logger.Info("Installing %s dependencies in %s", q.DependencyManager, q.Image())
	if err := p.runner.Run(ctx, q.Image(), runtimeDir, script); err != nil {
		return "", err
	}

	p.logger.Debug("Normalizing file timestamps")
	if err := normalizeTimestamps(runtimeDir); err != nil {
		return "", fmt.Errorf("failed to normalize timestamps: %w", err)
	}

	p.logger.Debug("Creating archive: %s", archive)
	if err := createZip(buildDir, archive); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	return archive, nil
}

func installScript(pre []string, install string) string {
	return strings.Join(append(append([]string{}, pre...), install), " && ")
}

func commandFailed(command string, err error, stderr []byte) error {
	var cmdErr dserrors.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return dserrors.CommandError{
		Command: command,
		Message: strings.TrimSpace(fmt.Sprintf("%v %s", err, stderr)),
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
