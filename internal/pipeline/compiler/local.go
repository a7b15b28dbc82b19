// Package compiler implements the reference local Compiler stage
// driver: synchronous configure, asynchronous build, grounded on
// branchmanager_local.py's LocalPatchCompiler. The async build runs on
// a goroutine with a single writer callback rather than a background
// thread.
package compiler

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/pipeline"
)

var compileDelay = 60 * time.Second

// Local is the reference Compiler stage driver.
type Local struct {
	WorkingDir string
	RepoDir    string
	Ledger     ledger.Store

	// run overrides command execution for tests.
	run func(dir string, name string, args ...string) (stdout, stderr string, err error)
}

func (l *Local) runCmd(dir, name string, args ...string) (string, string, error) {
	if l.run != nil {
		return l.run(dir, name, args...)
	}
	cmd := exec.Command(name, args...) //nolint:gosec // G204: fixed meson/ninja invocations against the per-branch repo
	cmd.Dir = dir
	var out, errBuf strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return out.String(), errBuf.String(), err
}

// Begin creates the Compile wrapper Task and the Meson Setup Task,
// running configure synchronously. On configure failure, the wrapper
// Task is marked COMPLETED (the stage has finished; failure surfaces
// via the Meson Setup Task's FAILED status when DidFail sweeps Tasks).
// On configure success, Ninja is launched in a background goroutine.
func (l *Local) Begin(ctx context.Context, b *pipeline.Branch) (bool, error) {
	compileTask := &ledger.Task{BranchID: b.BranchID, TaskName: "Compile", Status: ledger.TaskExecuting}
	if err := l.Ledger.CreateTask(ctx, compileTask); err != nil {
		return false, fmt.Errorf("compiler begin: create compile task: %w", err)
	}

	setupTask := &ledger.Task{BranchID: b.BranchID, TaskName: "Meson Setup", Position: 1, Status: ledger.TaskExecuting}
	if err := l.Ledger.CreateTask(ctx, setupTask); err != nil {
		return false, fmt.Errorf("compiler begin: create setup task: %w", err)
	}

	prefixDir := filepath.Join(l.WorkingDir, "install")
	stdout, stderr, err := l.runCmd(l.RepoDir, "meson", "setup", "build", "--prefix="+prefixDir)
	setupTask.Payload = map[string]any{"stdout": stdout, "stderr": stderr}
	if err != nil {
		setupTask.Status = ledger.TaskFailed
		_ = l.Ledger.UpdateTask(ctx, setupTask)
		compileTask.Status = ledger.TaskCompleted
		_ = l.Ledger.UpdateTask(ctx, compileTask)
		log.Warn(log.CatCompiler, "meson setup failed", "branch_id", b.BranchID, "stderr", stderr)
		return true, nil
	}
	setupTask.Status = ledger.TaskCompleted
	if err := l.Ledger.UpdateTask(ctx, setupTask); err != nil {
		return false, fmt.Errorf("compiler begin: update setup task: %w", err)
	}

	ninjaTask := &ledger.Task{BranchID: b.BranchID, TaskName: "Ninja", Position: 2, Status: ledger.TaskExecuting}
	if err := l.Ledger.CreateTask(ctx, ninjaTask); err != nil {
		return false, fmt.Errorf("compiler begin: create ninja task: %w", err)
	}

	go l.runBuildAsync(ninjaTask, compileTask)
	return true, nil
}

// runBuildAsync runs ninja in the background and signals completion by
// writing the terminal Task status through a single code path, per the
// "Async tasks" design note.
func (l *Local) runBuildAsync(ninjaTask, compileTask *ledger.Task) {
	buildDir := filepath.Join(l.RepoDir, "build")
	stdout, stderr, err := l.runCmd(buildDir, "ninja")

	ctx := context.Background()
	ninjaTask.Payload = map[string]any{"stdout": stdout, "stderr": stderr}
	if err != nil {
		ninjaTask.Status = ledger.TaskFailed
	} else {
		ninjaTask.Status = ledger.TaskCompleted
	}
	if err := l.Ledger.UpdateTask(ctx, ninjaTask); err != nil {
		log.ErrorErr(log.CatCompiler, "failed to persist ninja task result", err, "task_id", ninjaTask.ID)
	}

	compileTask.Status = ledger.TaskCompleted
	if err := l.Ledger.UpdateTask(ctx, compileTask); err != nil {
		log.ErrorErr(log.CatCompiler, "failed to persist compile task result", err, "task_id", compileTask.ID)
	}
}

// IsDone polls Ledger for every Task owned by the branch reaching a
// terminal status.
func (l *Local) IsDone(ctx context.Context, b *pipeline.Branch) (bool, error) {
	tasks, err := l.Ledger.TasksForBranch(ctx, b.BranchID)
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if !t.IsDone() {
			return false, nil
		}
	}
	return len(tasks) > 0, nil
}

// DidFail sweeps Tasks for any failure status.
func (l *Local) DidFail(ctx context.Context, b *pipeline.Branch) (bool, error) {
	tasks, err := l.Ledger.TasksForBranch(ctx, b.BranchID)
	if err != nil {
		return true, err
	}
	for _, t := range tasks {
		if t.IsFailure() {
			return true, nil
		}
	}
	return false, nil
}

// GetDelay mirrors LocalPatchCompiler.get_delay: poll again in 60s.
func (l *Local) GetDelay(_ context.Context, _ *pipeline.Branch) *time.Duration {
	d := compileDelay
	return &d
}
