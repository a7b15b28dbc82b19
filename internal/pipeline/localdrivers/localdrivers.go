// Package localdrivers wires the reference applier/compiler/tester
// Local stage drivers (each configured with fixed, per-instance working
// directories) behind the Engine's single shared Applier/Compiler/
// Tester fields, by lazily constructing one driver instance per branch
// and dispatching to it by branch ID.
package localdrivers

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/pipeline"
	"github.com/cfbotcore/pipeline/internal/pipeline/applier"
	"github.com/cfbotcore/pipeline/internal/pipeline/compiler"
	"github.com/cfbotcore/pipeline/internal/pipeline/tester"
)

// Config carries the filesystem roots every per-branch Local driver is
// derived from.
type Config struct {
	BaseDir          string
	TemplateDir      string
	FileFetchURLBase string
	ApplyScriptSrc   string
	Ledger           ledger.Store
}

func branchDirs(cfg Config, b *pipeline.Branch) (workingDir, repoDir string) {
	branchRoot := filepath.Join(cfg.BaseDir, b.BranchID)
	return filepath.Join(branchRoot, "work"), filepath.Join(branchRoot, "postgres")
}

// Applier dispatches Engine.Applier calls to a per-branch
// applier.Local, constructed on first use and reused for the life of
// the process.
type Applier struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]*applier.Local
}

// NewApplier constructs an Applier multiplexer.
func NewApplier(cfg Config) *Applier {
	return &Applier{cfg: cfg, drivers: make(map[string]*applier.Local)}
}

func (a *Applier) driver(b *pipeline.Branch) *applier.Local {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d, ok := a.drivers[b.BranchID]; ok {
		return d
	}
	workingDir, repoDir := branchDirs(a.cfg, b)
	d := &applier.Local{
		BaseDir:          a.cfg.BaseDir,
		BranchSubdir:     b.BranchID,
		TemplateDir:      a.cfg.TemplateDir,
		WorkingDir:       workingDir,
		RepoDir:          repoDir,
		ApplyScriptSrc:   a.cfg.ApplyScriptSrc,
		FileFetchURLBase: a.cfg.FileFetchURLBase,
		Ledger:           a.cfg.Ledger,
	}
	a.drivers[b.BranchID] = d
	return d
}

func (a *Applier) Begin(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return a.driver(b).Begin(ctx, b)
}

func (a *Applier) IsDone(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return a.driver(b).IsDone(ctx, b)
}

func (a *Applier) DidFail(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return a.driver(b).DidFail(ctx, b)
}

func (a *Applier) GetDelay(ctx context.Context, b *pipeline.Branch) *time.Duration {
	return a.driver(b).GetDelay(ctx, b)
}

// Compiler dispatches Engine.Compiler calls to a per-branch
// compiler.Local.
type Compiler struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]*compiler.Local
}

// NewCompiler constructs a Compiler multiplexer.
func NewCompiler(cfg Config) *Compiler {
	return &Compiler{cfg: cfg, drivers: make(map[string]*compiler.Local)}
}

func (c *Compiler) driver(b *pipeline.Branch) *compiler.Local {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.drivers[b.BranchID]; ok {
		return d
	}
	workingDir, repoDir := branchDirs(c.cfg, b)
	d := &compiler.Local{WorkingDir: workingDir, RepoDir: repoDir, Ledger: c.cfg.Ledger}
	c.drivers[b.BranchID] = d
	return d
}

func (c *Compiler) Begin(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return c.driver(b).Begin(ctx, b)
}

func (c *Compiler) IsDone(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return c.driver(b).IsDone(ctx, b)
}

func (c *Compiler) DidFail(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return c.driver(b).DidFail(ctx, b)
}

func (c *Compiler) GetDelay(ctx context.Context, b *pipeline.Branch) *time.Duration {
	return c.driver(b).GetDelay(ctx, b)
}

// Tester dispatches Engine.Tester calls to a per-branch tester.Local.
type Tester struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]*tester.Local
}

// NewTester constructs a Tester multiplexer.
func NewTester(cfg Config) *Tester {
	return &Tester{cfg: cfg, drivers: make(map[string]*tester.Local)}
}

func (t *Tester) driver(b *pipeline.Branch) *tester.Local {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.drivers[b.BranchID]; ok {
		return d
	}
	workingDir, repoDir := branchDirs(t.cfg, b)
	d := &tester.Local{WorkingDir: workingDir, RepoDir: repoDir, Ledger: t.cfg.Ledger}
	t.drivers[b.BranchID] = d
	return d
}

func (t *Tester) Begin(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return t.driver(b).Begin(ctx, b)
}

func (t *Tester) IsDone(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return t.driver(b).IsDone(ctx, b)
}

func (t *Tester) DidFail(ctx context.Context, b *pipeline.Branch) (bool, error) {
	return t.driver(b).DidFail(ctx, b)
}

func (t *Tester) GetDelay(ctx context.Context, b *pipeline.Branch) *time.Duration {
	return t.driver(b).GetDelay(ctx, b)
}
