package applier

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/pipeline"
)

func hasGit(t *testing.T) bool {
	t.Helper()
	_, err := exec.LookPath("git")
	return err == nil
}

func initTemplateRepo(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "--quiet", "-b", "master")
	run("config", "user.name", "Test")
	run("config", "user.email", "test@example.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0o644))
	run("add", "README")
	run("commit", "--quiet", "-m", "initial")
}

func TestLocal_InitializeDirectories_MissingBaseDir(t *testing.T) {
	l := &Local{BaseDir: "/nonexistent/base", TemplateDir: "/nonexistent/template"}
	err := l.initializeDirectories(&pipeline.Branch{PatchID: "1"})
	assert.Error(t, err)
}

func TestLocal_InitializeDirectories_MissingGitDir(t *testing.T) {
	if !hasGit(t) {
		t.Skip("git not available")
	}
	base := t.TempDir()
	template := filepath.Join(base, "template")
	require.NoError(t, os.MkdirAll(template, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(template, "file.txt"), []byte("x"), 0o644))

	l := &Local{
		BaseDir:      base,
		BranchSubdir: "branch-1",
		TemplateDir:  template,
		WorkingDir:   filepath.Join(base, "branch-1", "work"),
		RepoDir:      filepath.Join(base, "branch-1", "postgres"),
	}
	err := l.initializeDirectories(&pipeline.Branch{PatchID: "1"})
	assert.Error(t, err)
}

func TestLocal_InitializeDirectories_Success(t *testing.T) {
	if !hasGit(t) {
		t.Skip("git not available")
	}
	base := t.TempDir()
	template := filepath.Join(base, "template")
	initTemplateRepo(t, template)

	l := &Local{
		BaseDir:      base,
		BranchSubdir: "branch-1",
		TemplateDir:  template,
		WorkingDir:   filepath.Join(base, "branch-1", "work"),
		RepoDir:      filepath.Join(base, "branch-1", "postgres"),
	}
	err := l.initializeDirectories(&pipeline.Branch{PatchID: "42"})
	require.NoError(t, err)

	assert.DirExists(t, l.WorkingDir)
	assert.DirExists(t, l.RepoDir)
	assert.FileExists(t, filepath.Join(l.RepoDir, "README"))

	out, err := exec.Command("git", "-C", l.RepoDir, "rev-parse", "--abbrev-ref", "HEAD").CombinedOutput()
	require.NoError(t, err)
	assert.Equal(t, "cf/42", strings.TrimSpace(string(out)))
}

type fakeAttachmentSource struct {
	attachments []Attachment
}

func (f *fakeAttachmentSource) ListAttachments(_ context.Context, _ string) ([]Attachment, error) {
	return f.attachments, nil
}

func TestLocal_Begin_DownloadSuccess(t *testing.T) {
	if !hasGit(t) {
		t.Skip("git not available")
	}
	base := t.TempDir()
	template := filepath.Join(base, "template")
	initTemplateRepo(t, template)

	workingDir := filepath.Join(base, "branch-1", "work")
	repoDir := filepath.Join(base, "branch-1", "postgres")

	fileBody := "diff --git a/x b/x\n"
	store := ledger.NewMemoryStore()

	l := &Local{
		BaseDir:      base,
		BranchSubdir: "branch-1",
		TemplateDir:  template,
		WorkingDir:   workingDir,
		RepoDir:      repoDir,
		Ledger:       store,
		Attachments: &fakeAttachmentSource{attachments: []Attachment{
			{AttachmentID: 1, FileName: "0001.diff", IsPatch: true},
			{AttachmentID: 2, FileName: "cover-letter.txt", IsPatch: false},
		}},
		HTTPGet: func(url string) (*http.Response, error) {
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(fileBody)),
			}, nil
		},
	}

	branch := &pipeline.Branch{PatchID: "42", BranchID: "b-42", Status: pipeline.StatusNew}
	ok, err := l.Begin(context.Background(), branch)
	require.NoError(t, err)
	assert.True(t, ok)

	tasks, err := store.TasksForBranch(context.Background(), "b-42")
	require.NoError(t, err)
	require.Len(t, tasks, 2, "Download succeeds; Apply fails since no apply script is staged in this test")
	assert.Equal(t, "Download", tasks[0].TaskName)
	assert.Equal(t, ledger.TaskCompleted, tasks[0].Status)
	assert.Equal(t, "Apply", tasks[1].TaskName)
	assert.Equal(t, ledger.TaskFailed, tasks[1].Status)

	cmds, err := store.CommandsForTask(context.Background(), tasks[0].ID, "Patchset File")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, ledger.TaskCompleted, cmds[0].Status)

	assert.FileExists(t, filepath.Join(workingDir, "0001.diff"))
}

func TestLocal_Begin_AbortsWhenTasksAlreadyExist(t *testing.T) {
	store := ledger.NewMemoryStore()
	require.NoError(t, store.CreateTask(context.Background(), &ledger.Task{BranchID: "b-1", TaskName: "Download"}))

	l := &Local{Ledger: store}
	ok, err := l.Begin(context.Background(), &pipeline.Branch{PatchID: "1", BranchID: "b-1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDriftArtifactBody_NoCRLF(t *testing.T) {
	assert.Nil(t, driftArtifactBody([]byte("already\nunix\n")))
}

func TestDriftArtifactBody_WithCRLF(t *testing.T) {
	body := driftArtifactBody([]byte("a\r\nb\r\n"))
	assert.NotEmpty(t, body)
}
