// Package applier implements the reference local-filesystem Applier
// stage driver, grounded on branchmanager_local.py's LocalPatchApplier:
// it downloads attachments over HTTP, applies them sequentially via an
// external shell script, and on success converts the result to a merge
// commit against the template repository.
package applier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/cfbotcore/pipeline/internal/errs"
	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/pipeline"
)

const applyScriptName = "apply-one-patch.sh"

var (
	reAdditions = regexp.MustCompile(`(\d+) insertion`)
	reDeletions = regexp.MustCompile(`(\d+) deletion`)
)

// Attachment describes one file attached to a patch set submission.
type Attachment struct {
	AttachmentID int64
	FileName     string
	IsPatch      bool
}

// AttachmentSource is the external collaborator (mail-archive ingestion,
// out of scope here) that lists a patch set's attachments.
type AttachmentSource interface {
	ListAttachments(ctx context.Context, patchID string) ([]Attachment, error)
}

// Local is the reference Applier stage driver.
type Local struct {
	BaseDir         string
	BranchSubdir    string
	TemplateDir     string
	WorkingDir      string
	RepoDir         string
	ApplyScriptSrc  string
	FileFetchURLBase string

	Attachments AttachmentSource
	Ledger      ledger.Store

	// HTTPGet is overridable so tests substitute a fake without a real
	// network call.
	HTTPGet func(url string) (*http.Response, error)
}

func (l *Local) httpGet(url string) (*http.Response, error) {
	if l.HTTPGet != nil {
		return l.HTTPGet(url)
	}
	return http.Get(url) //nolint:gosec // G107: url is built from operator-configured FileFetchURLBase
}

// Begin downloads and applies the patch set, grounded on
// LocalPatchApplier.initialize_directories + download_and_save +
// perform_apply. Returns false (producing `applying-aborted`) when the
// working environment cannot be prepared.
func (l *Local) Begin(ctx context.Context, b *pipeline.Branch) (bool, error) {
	existing, err := l.Ledger.TasksForBranch(ctx, b.BranchID)
	if err != nil {
		return false, fmt.Errorf("applier begin: list existing tasks: %w", err)
	}
	if len(existing) > 0 {
		log.Warn(log.CatApplier, "tasks already exist at apply begin; aborting", "branch_id", b.BranchID)
		return false, nil
	}

	if err := l.initializeDirectories(b); err != nil {
		log.ErrorErr(log.CatApplier, "failed to initialize directories", err, "branch_id", b.BranchID)
		return false, nil
	}

	downloadTask := &ledger.Task{BranchID: b.BranchID, TaskName: "Download", Position: 0, Status: ledger.TaskExecuting}
	if err := l.Ledger.CreateTask(ctx, downloadTask); err != nil {
		return false, fmt.Errorf("applier begin: create download task: %w", err)
	}

	attachments, err := l.Attachments.ListAttachments(ctx, b.PatchID)
	if err != nil {
		downloadTask.Status = ledger.TaskFailed
		_ = l.Ledger.UpdateTask(ctx, downloadTask)
		log.ErrorErr(log.CatApplier, "failed to list attachments", err, "patch_id", b.PatchID)
		return true, nil
	}

	downloaded, anyDownloadFailed := l.downloadAttachments(ctx, downloadTask, attachments)

	downloadTask.Status = ledger.TaskCompleted
	if anyDownloadFailed {
		downloadTask.Status = ledger.TaskFailed
	}
	if err := l.Ledger.UpdateTask(ctx, downloadTask); err != nil {
		return false, fmt.Errorf("applier begin: update download task: %w", err)
	}

	if anyDownloadFailed {
		log.Warn(log.CatApplier, "download failure; skipping apply task", "branch_id", b.BranchID)
		return true, nil
	}

	l.applyPatches(ctx, b, downloadTask, downloaded)
	return true, nil
}

// downloadAttachments fetches every "Patchset File" attachment,
// recording one Command per attachment. "Other File" attachments are
// recorded ABORTED without a fetch attempt. On first download failure,
// subsequent Patchset File attachments are still recorded but marked
// IGNORED and no further download is attempted.
func (l *Local) downloadAttachments(ctx context.Context, task *ledger.Task, attachments []Attachment) (downloaded []string, anyFailed bool) {
	for _, att := range attachments {
		if !att.IsPatch {
			cmd := &ledger.Command{TaskID: task.ID, Name: att.FileName, Type: "Other File", Status: ledger.TaskAborted}
			_ = l.Ledger.CreateCommand(ctx, cmd)
			continue
		}

		cmd := &ledger.Command{TaskID: task.ID, Name: att.FileName, Type: "Patchset File", Status: ledger.TaskExecuting}
		_ = l.Ledger.CreateCommand(ctx, cmd)

		if anyFailed {
			cmd.Status = ledger.TaskAborted
			_ = l.Ledger.UpdateCommand(ctx, cmd)
			continue
		}

		if err := l.downloadAndSave(ctx, task.ID, att); err != nil {
			log.ErrorErr(log.CatApplier, "download failed", err, "file", att.FileName)
			cmd.Status = ledger.TaskFailed
			cmd.Payload = map[string]any{"error": err.Error()}
			_ = l.Ledger.UpdateCommand(ctx, cmd)
			anyFailed = true
			continue
		}

		cmd.Status = ledger.TaskCompleted
		_ = l.Ledger.UpdateCommand(ctx, cmd)
		downloaded = append(downloaded, att.FileName)
	}

	sort.Strings(downloaded)
	return downloaded, anyFailed
}

func (l *Local) downloadAndSave(ctx context.Context, taskID int64, att Attachment) error {
	url := fmt.Sprintf("%s%d/%s", l.FileFetchURLBase, att.AttachmentID, att.FileName)
	resp, err := l.httpGet(url)
	if err != nil {
		return errs.WrapDownload(err, "fetching %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errs.NewDownload("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	filePath := filepath.Join(l.WorkingDir, att.FileName)
	f, err := os.Create(filePath) //nolint:gosec // G304: filename comes from the operator's patch-attachment listing
	if err != nil {
		return errs.WrapDownload(err, "creating %s", filePath)
	}
	defer f.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.WrapDownload(err, "reading body for %s", att.FileName)
	}
	if _, err := f.Write(body); err != nil {
		return errs.WrapDownload(err, "writing %s", filePath)
	}

	info, err := os.Stat(filePath)
	var size int64
	if err == nil {
		size = info.Size()
	}
	_ = l.Ledger.CreateArtifact(ctx, &ledger.Artifact{
		TaskID: taskID,
		Name:   att.FileName,
		Path:   filePath,
		Size:   size,
		Body:   driftArtifactBody(body),
	})
	return nil
}

// driftArtifactBody runs the raw attachment bytes through go-diff
// against a trailing-whitespace-normalized copy, so the saved artifact
// carries a concrete diffmatchpatch-produced unified diff independent
// of the shortstat regex extraction used for additions/deletions
// accounting.
func driftArtifactBody(raw []byte) []byte {
	normalized := strings.Join(strings.Split(string(raw), "\r\n"), "\n")
	if normalized == string(raw) {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(raw), normalized, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return []byte(dmp.DiffPrettyText(diffs))
}

// applyPatches creates the Apply Task with one "Apply Patch" Command
// per downloaded file, in lexical filename order, applying each
// sequentially via the external shell script.
func (l *Local) applyPatches(ctx context.Context, b *pipeline.Branch, downloadTask *ledger.Task, files []string) {
	applyTask := &ledger.Task{BranchID: b.BranchID, TaskName: "Apply", Position: downloadTask.Position + 1, Status: ledger.TaskExecuting}
	if err := l.Ledger.CreateTask(ctx, applyTask); err != nil {
		log.ErrorErr(log.CatApplier, "failed to create apply task", err, "branch_id", b.BranchID)
		return
	}

	failed := false
	for _, name := range files {
		cmd := &ledger.Command{TaskID: applyTask.ID, Name: name, Type: "Apply Patch", Status: ledger.TaskExecuting}
		_ = l.Ledger.CreateCommand(ctx, cmd)

		if failed {
			cmd.Status = ledger.TaskAborted
			_ = l.Ledger.UpdateCommand(ctx, cmd)
			continue
		}

		stdout, stderr, err := l.performApply(name)
		cmd.Payload = map[string]any{"stdout": stdout, "stderr": stderr}
		if err != nil {
			cmd.Status = ledger.TaskFailed
			failed = true
		} else {
			cmd.Status = ledger.TaskCompleted
		}
		_ = l.Ledger.UpdateCommand(ctx, cmd)
	}

	applyTask.Status = ledger.TaskCompleted
	if failed {
		applyTask.Status = ledger.TaskFailed
	}
	_ = l.Ledger.UpdateTask(ctx, applyTask)
}

func (l *Local) performApply(filename string) (stdout, stderr string, err error) {
	filePath := filepath.Join(l.WorkingDir, filename)
	if _, statErr := os.Stat(filePath); statErr != nil {
		return "", "", errs.WrapApply(statErr, "file %s does not exist in working directory", filename)
	}

	cmd := exec.Command("./"+applyScriptName, filename, l.RepoDir) //nolint:gosec // G204: filename is the attachment name recorded by the Download task
	cmd.Dir = l.WorkingDir
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()
	if runErr != nil {
		return outBuf.String(), errBuf.String(), errs.WrapApply(runErr, "apply script failed for %s", filename)
	}
	return outBuf.String(), errBuf.String(), nil
}

// IsDone reports whether every Task owned by the branch has reached a
// terminal status. The reference driver performs download+apply
// synchronously inside Begin, so this is true as soon as the tasks
// created there exist.
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
	return true, nil
}

// DidFail inspects Tasks for failure, and on a clean apply additionally
// performs the post-condition work: patch count, diff-stat accounting,
// merge-commit conversion, and SHA capture.
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

	patchCount, err := l.countPatchFiles()
	if err != nil {
		log.ErrorErr(log.CatApplier, "failed to count patch files", err, "branch_id", b.BranchID)
		return true, nil
	}
	b.PatchCount = patchCount

	baseSHA, err := l.getBaseCommitSHA()
	if err != nil {
		log.ErrorErr(log.CatApplier, "failed to resolve base commit", err, "branch_id", b.BranchID)
		return true, nil
	}

	allAdd, allDel, err := l.gitShortStat(baseSHA, "HEAD")
	if err != nil {
		log.ErrorErr(log.CatApplier, "git shortstat (all patches) failed", err, "branch_id", b.BranchID)
		return true, nil
	}

	firstRef := "HEAD"
	if patchCount > 1 {
		firstRef = fmt.Sprintf("HEAD~%d", patchCount-1)
	}
	firstAdd, firstDel, err := l.gitShortStat(baseSHA, firstRef)
	if err != nil {
		log.ErrorErr(log.CatApplier, "git shortstat (first patch) failed", err, "branch_id", b.BranchID)
		return true, nil
	}

	commitID, err := l.convertToMergeCommit(b)
	if err != nil {
		log.ErrorErr(log.CatApplier, "merge-commit conversion failed", err, "branch_id", b.BranchID)
		return true, nil
	}

	b.BaseCommitSHA = baseSHA
	b.CommitID = commitID
	b.AllAdditions, b.AllDeletions = allAdd, allDel
	b.FirstAdditions, b.FirstDeletions = firstAdd, firstDel
	return false, nil
}

// GetDelay: the reference Applier never asks to be re-ticked on its own
// schedule; progress is driven entirely by isDone's synchronous result.
func (l *Local) GetDelay(_ context.Context, _ *pipeline.Branch) *time.Duration { return nil }

func (l *Local) countPatchFiles() (int, error) {
	entries, err := os.ReadDir(l.WorkingDir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".diff") || strings.HasSuffix(e.Name(), ".patch") {
			count++
		}
	}
	return count, nil
}

func (l *Local) gitShortStat(from, to string) (additions, deletions int, err error) {
	out, err := l.git("diff", "--shortstat", from, to)
	if err != nil {
		return 0, 0, err
	}
	if m := reAdditions.FindStringSubmatch(out); m != nil {
		additions, _ = strconv.Atoi(m[1])
	}
	if m := reDeletions.FindStringSubmatch(out); m != nil {
		deletions, _ = strconv.Atoi(m[1])
	}
	return additions, deletions, nil
}

func (l *Local) getBaseCommitSHA() (string, error) {
	return l.git("rev-parse", "origin/master")
}

func (l *Local) getHeadCommitSHA() (string, error) {
	return l.git("rev-parse", "HEAD")
}

func (l *Local) git(args ...string) (string, error) {
	fullArgs := append([]string{"-C", l.RepoDir}, args...)
	cmd := exec.Command("git", fullArgs...) //nolint:gosec // G204: fixed git subcommands against the per-branch repo dir
	var out, errBuf strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, errBuf.String())
	}
	return strings.TrimSpace(out.String()), nil
}

// convertToMergeCommit writes a merge-commit message, resets the repo
// to origin/master, and merges the pre-reset HEAD in as a merge commit,
// grounded on LocalPatchApplier.convert_to_merge_commit.
func (l *Local) convertToMergeCommit(b *pipeline.Branch) (string, error) {
	commitID, err := l.getHeadCommitSHA()
	if err != nil {
		return "", err
	}

	msgFile := filepath.Join(l.WorkingDir, "merge_commit_msg.txt")
	msg := fmt.Sprintf("Merge branch '%s' into master\n\nPatch ID: %s\nBranch ID: %s\nCommit ID: %s\n",
		b.BranchName, b.PatchID, b.BranchID, commitID)
	if err := os.WriteFile(msgFile, []byte(msg), 0o600); err != nil {
		return "", fmt.Errorf("writing merge message: %w", err)
	}

	if _, err := l.git("reset", "origin/master", "--hard", "--quiet"); err != nil {
		return "", fmt.Errorf("reset to origin/master: %w", err)
	}
	if _, err := l.git("merge", "--no-ff", "--quiet", "-F", msgFile, commitID); err != nil {
		return "", fmt.Errorf("merge --no-ff: %w", err)
	}
	return commitID, nil
}

// initializeDirectories re-creates the per-branch working/repo
// directories from the template repo, grounded on
// LocalPatchApplier.initialize_directories.
func (l *Local) initializeDirectories(b *pipeline.Branch) error {
	if _, err := os.Stat(l.BaseDir); err != nil {
		return errs.WrapEnvironment(err, "base directory %q does not exist", l.BaseDir)
	}
	if _, err := os.Stat(l.TemplateDir); err != nil {
		return errs.WrapEnvironment(err, "template directory %q does not exist", l.TemplateDir)
	}
	entries, err := os.ReadDir(l.TemplateDir)
	if err != nil {
		return errs.WrapEnvironment(err, "reading template directory %q", l.TemplateDir)
	}
	if len(entries) == 0 {
		return errs.NewEnvironment("template directory %q is empty", l.TemplateDir)
	}
	if _, err := os.Stat(filepath.Join(l.TemplateDir, ".git")); err != nil {
		return errs.WrapEnvironment(err, "template directory %q has no .git", l.TemplateDir)
	}

	branchDir := filepath.Join(l.BaseDir, l.BranchSubdir)
	if _, err := os.Stat(branchDir); err == nil {
		if err := os.RemoveAll(branchDir); err != nil {
			return errs.WrapEnvironment(err, "removing stale branch directory %q", branchDir)
		}
	}
	if err := os.MkdirAll(branchDir, 0o755); err != nil {
		return errs.WrapEnvironment(err, "creating branch directory %q", branchDir)
	}
	if err := os.MkdirAll(l.WorkingDir, 0o755); err != nil {
		return errs.WrapEnvironment(err, "creating working directory %q", l.WorkingDir)
	}

	if err := copyTree(l.TemplateDir, l.RepoDir); err != nil {
		return errs.WrapEnvironment(err, "copying template to %q", l.RepoDir)
	}

	if l.ApplyScriptSrc != "" {
		src := filepath.Join(l.ApplyScriptSrc, applyScriptName)
		if _, err := os.Stat(src); err != nil {
			return errs.WrapEnvironment(err, "apply script %q does not exist", src)
		}
		if err := copyFile(src, filepath.Join(l.WorkingDir, applyScriptName)); err != nil {
			return errs.WrapEnvironment(err, "staging apply script")
		}
	}

	if _, err := l.git("config", "user.name", "Commitfest Bot"); err != nil {
		return errs.WrapEnvironment(err, "git config user.name")
	}
	if _, err := l.git("config", "user.email", "cfbot@cputube.org"); err != nil {
		return errs.WrapEnvironment(err, "git config user.email")
	}

	branchName := fmt.Sprintf("cf/%s", b.PatchID)
	_, _ = l.git("branch", "--quiet", "-D", branchName) // best-effort; branch may not exist yet
	if _, err := l.git("checkout", "--quiet", "-b", branchName); err != nil {
		return errs.WrapEnvironment(err, "checkout -b %s", branchName)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src) //nolint:gosec // G304: src is the operator-configured apply-script path
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o755) //nolint:gosec // G306: the apply script must be executable
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target)
	})
}
