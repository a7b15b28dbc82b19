// Package tester implements the reference local Tester stage driver: a
// single asynchronous test-suite invocation, mirroring the Compiler's
// structure per branchmanager_local.py's LocalPatchTester.
package tester

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/pipeline"
)

var testDelay = 60 * time.Second

// Local is the reference Tester stage driver.
type Local struct {
	WorkingDir string
	RepoDir    string
	Ledger     ledger.Store

	run func(dir string, name string, args ...string) (stdout, stderr string, err error)
}

func (l *Local) runCmd(dir, name string, args ...string) (string, string, error) {
	if l.run != nil {
		return l.run(dir, name, args...)
	}
	cmd := exec.Command(name, args...) //nolint:gosec // G204: fixed meson test invocation against the per-branch build dir
	cmd.Dir = dir
	var out, errBuf strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return out.String(), errBuf.String(), err
}

// Begin creates the Test wrapper Task and the Run Test Task, then
// launches the test suite in a background goroutine.
func (l *Local) Begin(ctx context.Context, b *pipeline.Branch) (bool, error) {
	testTask := &ledger.Task{BranchID: b.BranchID, TaskName: "Test", Status: ledger.TaskExecuting}
	if err := l.Ledger.CreateTask(ctx, testTask); err != nil {
		return false, fmt.Errorf("tester begin: create test task: %w", err)
	}

	runTestTask := &ledger.Task{BranchID: b.BranchID, TaskName: "Run Test", Position: 1, Status: ledger.TaskExecuting}
	if err := l.Ledger.CreateTask(ctx, runTestTask); err != nil {
		return false, fmt.Errorf("tester begin: create run-test task: %w", err)
	}

	go l.runTestAsync(runTestTask, testTask)
	return true, nil
}

func (l *Local) runTestAsync(runTestTask, testTask *ledger.Task) {
	buildDir := l.RepoDir + "/build"
	stdout, stderr, err := l.runCmd(buildDir, "meson", "test")

	ctx := context.Background()
	runTestTask.Payload = map[string]any{"stdout": stdout, "stderr": stderr}
	if err != nil {
		runTestTask.Status = ledger.TaskFailed
	} else {
		runTestTask.Status = ledger.TaskCompleted
	}
	if err := l.Ledger.UpdateTask(ctx, runTestTask); err != nil {
		log.ErrorErr(log.CatTester, "failed to persist run-test task result", err, "task_id", runTestTask.ID)
	}

	testTask.Status = ledger.TaskCompleted
	if err := l.Ledger.UpdateTask(ctx, testTask); err != nil {
		log.ErrorErr(log.CatTester, "failed to persist test task result", err, "task_id", testTask.ID)
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

// GetDelay mirrors LocalPatchTester.get_delay: poll again in 60s.
func (l *Local) GetDelay(_ context.Context, _ *pipeline.Branch) *time.Duration {
	d := testDelay
	return &d
}
