package layer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/systmms/idrotate/pkg/exec"
)

// Workflow is the dependency-manager specific part of a layer build
type Workflow interface {
	// Manifest is the dependency file expected next to the lock file
	Manifest() string
	// RuntimeDir is where dependencies land inside the build directory
	RuntimeDir(buildDir, runtime string) string
	// PreInstall runs on the host inside the runtime directory
	PreInstall(ctx context.Context, executor exec.CommandExecutor, dir string) error
	// InstallCommand runs inside the build container
	InstallCommand(runtime string) string
}

// NewWorkflow returns the workflow for a dependency manager
func NewWorkflow(manager string) (Workflow, error) {
	switch manager {
	case "poetry":
		return poetryWorkflow{}, nil
	case "npm":
		return nodeWorkflow{tool: "npm"}, nil
	case "yarn":
		return nodeWorkflow{tool: "yarn"}, nil
	default:
		return nil, fmt.Errorf("invalid dependency manager: %s", manager)
	}
}

type poetryWorkflow struct{}

func (poetryWorkflow) Manifest() string {
	return "pyproject.toml"
}

func (poetryWorkflow) RuntimeDir(buildDir, runtime string) string {
	return filepath.Join(buildDir, "python", "lib", runtime, "site-packages")
}

// PreInstall exports requirements.txt; poetry cannot install into a target directory
func (poetryWorkflow) PreInstall(ctx context.Context, executor exec.CommandExecutor, dir string) error {
	_, stderr, err := executor.Execute(ctx, dir, "poetry", "export", "--without-hashes", "-f", "requirements.txt", "-o", "requirements.txt")
	if err != nil {
		return commandFailed("poetry export", err, stderr)
	}
	return nil
}

func (poetryWorkflow) InstallCommand(runtime string) string {
	pip := "pip2"
	if strings.HasPrefix(runtime, "python3") {
		pip = "pip3"
	}
	return fmt.Sprintf("cd /var/task && %s install --prefix= -r requirements.txt --target .", pip)
}

type nodeWorkflow struct {
	tool string
}

func (nodeWorkflow) Manifest() string {
	return "package.json"
}

func (nodeWorkflow) RuntimeDir(buildDir, _ string) string {
	return filepath.Join(buildDir, "nodejs")
}

func (nodeWorkflow) PreInstall(context.Context, exec.CommandExecutor, string) error {
	return nil
}

func (w nodeWorkflow) InstallCommand(string) string {
	return fmt.Sprintf("cd /var/task && %s install --production", w.tool)
}
