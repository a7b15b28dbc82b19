package localdrivers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/pipeline"
)

func TestCompiler_DriverReusedPerBranch(t *testing.T) {
	c := NewCompiler(Config{BaseDir: t.TempDir(), Ledger: ledger.NewMemoryStore()})
	b := &pipeline.Branch{BranchID: "101-m1"}

	first := c.driver(b)
	second := c.driver(b)
	assert.Same(t, first, second)
}

func TestCompiler_DriverDiffersAcrossBranches(t *testing.T) {
	c := NewCompiler(Config{BaseDir: t.TempDir(), Ledger: ledger.NewMemoryStore()})

	a := c.driver(&pipeline.Branch{BranchID: "101-m1"})
	b := c.driver(&pipeline.Branch{BranchID: "102-m1"})
	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.WorkingDir, b.WorkingDir)
}
