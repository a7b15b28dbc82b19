package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cfbotcore/pipeline/internal/pipeline"
)

// BranchRepo implements pipeline.Store against the branches table, one
// row per patch-id.
type BranchRepo struct {
	db *sql.DB
}

// NewBranchRepo constructs a BranchRepo.
func NewBranchRepo(db *DB) *BranchRepo {
	return &BranchRepo{db: db.conn}
}

var _ pipeline.Store = (*BranchRepo)(nil)

const branchColumns = `patch_id, branch_id, branch_name, status, commit_id, apply_url, base_commit_sha,
	patch_count, first_additions, first_deletions, all_additions, all_deletions,
	needs_rebase_since, failing_since, version, created, modified`

func scanBranch(scanner interface{ Scan(...any) error }) (*pipeline.Branch, error) {
	var b pipeline.Branch
	var status string
	var needsRebaseSince, failingSince sql.NullTime

	err := scanner.Scan(
		&b.PatchID, &b.BranchID, &b.BranchName, &status, &b.CommitID, &b.ApplyURL, &b.BaseCommitSHA,
		&b.PatchCount, &b.FirstAdditions, &b.FirstDeletions, &b.AllAdditions, &b.AllDeletions,
		&needsRebaseSince, &failingSince, &b.Version, &b.Created, &b.Modified,
	)
	if err != nil {
		return nil, err
	}
	b.Status = pipeline.Status(status)
	if needsRebaseSince.Valid {
		t := needsRebaseSince.Time
		b.NeedsRebaseSince = &t
	}
	if failingSince.Valid {
		t := failingSince.Time
		b.FailingSince = &t
	}
	return &b, nil
}

func (r *BranchRepo) Get(ctx context.Context, patchID string) (*pipeline.Branch, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+branchColumns+` FROM branches WHERE patch_id = ?`, patchID)
	b, err := scanBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get branch: %w", err)
	}
	return b, true, nil
}

// Save upserts b, incrementing Version — a concurrency witness rather
// than an optimistic-lock gate, mirroring the Engine's single-writer
// assumption (one Step per Branch at a time).
func (r *BranchRepo) Save(ctx context.Context, b *pipeline.Branch) error {
	now := time.Now().UTC()
	if b.Created.IsZero() {
		b.Created = now
	}
	b.Modified = now
	b.Version++

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO branches (
			patch_id, branch_id, branch_name, status, commit_id, apply_url, base_commit_sha,
			patch_count, first_additions, first_deletions, all_additions, all_deletions,
			needs_rebase_since, failing_since, version, created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patch_id) DO UPDATE SET
			branch_name = excluded.branch_name,
			status = excluded.status,
			commit_id = excluded.commit_id,
			apply_url = excluded.apply_url,
			base_commit_sha = excluded.base_commit_sha,
			patch_count = excluded.patch_count,
			first_additions = excluded.first_additions,
			first_deletions = excluded.first_deletions,
			all_additions = excluded.all_additions,
			all_deletions = excluded.all_deletions,
			needs_rebase_since = excluded.needs_rebase_since,
			failing_since = excluded.failing_since,
			version = excluded.version,
			modified = excluded.modified`,
		b.PatchID, b.BranchID, b.BranchName, string(b.Status), b.CommitID, b.ApplyURL, b.BaseCommitSHA,
		b.PatchCount, b.FirstAdditions, b.FirstDeletions, b.AllAdditions, b.AllDeletions,
		b.NeedsRebaseSince, b.FailingSince, b.Version, b.Created, b.Modified,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save branch: %w", err)
	}
	return nil
}
