package core

import (
	"context"
	"fmt"
)

// ConflictFile captures one file's three-way content at a merge conflict:
// each worktree's version plus, when the file existed before the branches
// diverged, the common ancestor's version.
type ConflictFile struct {
	Path   string
	Ours   string
	Theirs string
	Base   string
	HasBase bool
}

// NewConflictFile returns a ConflictFile with a base version recorded.
func NewConflictFile(path, ours, theirs, base string) ConflictFile {
	return ConflictFile{Path: path, Ours: ours, Theirs: theirs, Base: base, HasBase: true}
}

// NewConflictFileWithoutBase returns a ConflictFile for a file with no
// common ancestor version (added independently on both sides).
func NewConflictFileWithoutBase(path, ours, theirs string) ConflictFile {
	return ConflictFile{Path: path, Ours: ours, Theirs: theirs}
}

// MergeResultKind discriminates MergeResult.
type MergeResultKind int

const (
	MergeSuccess MergeResultKind = iota
	MergeConflicts
	MergeFailed
)

// MergeResult is the outcome of ConflictResolver.Merge: a clean merge
// commit, a set of unresolved conflicts, or a hard failure running git.
type MergeResult struct {
	Kind   MergeResultKind
	Commit string         // set for MergeSuccess
	Files  []ConflictFile // set for MergeConflicts
	Error  string         // set for MergeFailed
}

func mergeSuccess(commit string) MergeResult  { return MergeResult{Kind: MergeSuccess, Commit: commit} }
func mergeConflicts(files []ConflictFile) MergeResult {
	return MergeResult{Kind: MergeConflicts, Files: files}
}
func mergeFailed(err string) MergeResult { return MergeResult{Kind: MergeFailed, Error: err} }

func (r MergeResult) IsSuccess() bool   { return r.Kind == MergeSuccess }
func (r MergeResult) IsConflicts() bool { return r.Kind == MergeConflicts }
func (r MergeResult) IsFailed() bool    { return r.Kind == MergeFailed }

// ConflictResolver merges a task worktree's branch into a shared staging
// branch, surfacing conflicts instead of leaving a half-merged worktree
// behind. Every git operation goes through GitOps's shelled CLI commands
// rather than in-process index manipulation.
type ConflictResolver struct {
	git *GitOps
}

// NewConflictResolver returns a resolver that drives git through ops.
func NewConflictResolver(ops *GitOps) *ConflictResolver {
	return &ConflictResolver{git: ops}
}

// Merge merges worktree's head commit into stagingBranch:
// open the main repository, create stagingBranch at its current head if it
// doesn't exist yet, read the worktree's head, check out stagingBranch, and
// merge-analyze the worktree's head against it. Returns MergeConflicts
// (leaving the main repository's merge aborted, so it's clean again) rather
// than an error when the merge needs manual resolution.
func (r *ConflictResolver) Merge(ctx context.Context, worktree, stagingBranch string) (MergeResult, error) {
	worktreeGit := r.git.WithWorkDir(worktree)
	main := r.git

	worktreeHead, err := worktreeGit.RevParse(ctx, "HEAD")
	if err != nil {
		return MergeResult{}, &ExternalError{Op: "resolve worktree HEAD", Err: err}
	}

	if !main.BranchExists(ctx, stagingBranch) {
		if err := main.CreateBranch(ctx, stagingBranch); err != nil {
			return MergeResult{}, err
		}
	}

	if err := main.Checkout(ctx, stagingBranch); err != nil {
		return MergeResult{}, err
	}

	stagingHead, err := main.RevParse(ctx, "HEAD")
	if err != nil {
		return MergeResult{}, &ExternalError{Op: "resolve staging HEAD", Err: err}
	}

	if stagingHead == worktreeHead || main.IsAncestor(ctx, worktreeHead, stagingHead) {
		// Up-to-date: the worktree's work is already reachable from staging.
		return mergeSuccess(stagingHead), nil
	}
	if main.IsAncestor(ctx, stagingHead, worktreeHead) {
		if err := main.MergeFastForward(ctx, worktreeHead); err != nil {
			return mergeFailed(err.Error()), nil
		}
		return mergeSuccess(worktreeHead), nil
	}

	output, conflicted, err := main.Merge(ctx, worktreeHead)
	if err != nil {
		return mergeFailed(err.Error()), nil
	}

	if conflicted {
		files, extractErr := r.extractConflicts(ctx, main)
		_ = main.AbortMerge(ctx)
		if extractErr != nil {
			return mergeFailed(extractErr.Error()), nil
		}
		return mergeConflicts(files), nil
	}

	commit, err := main.Commit(ctx, fmt.Sprintf("merge %s into %s", worktree, stagingBranch))
	if err != nil {
		return mergeFailed(fmt.Sprintf("%v: %s", err, output)), nil
	}
	return mergeSuccess(commit), nil
}

// extractConflicts reads the three-way content of every file git reports as
// unmerged, by reading the index stages directly instead of libgit2's
// in-process blob lookup.
func (r *ConflictResolver) extractConflicts(ctx context.Context, git *GitOps) ([]ConflictFile, error) {
	paths, err := git.ConflictedFiles(ctx)
	if err != nil {
		return nil, err
	}

	files := make([]ConflictFile, 0, len(paths))
	for _, path := range paths {
		ours, oursOk, err := git.ShowStage(ctx, 2, path)
		if err != nil {
			return nil, err
		}
		theirs, theirsOk, err := git.ShowStage(ctx, 3, path)
		if err != nil {
			return nil, err
		}
		if !oursOk {
			ours = ""
		}
		if !theirsOk {
			theirs = ""
		}

		base, baseOk, err := git.ShowStage(ctx, 1, path)
		if err != nil {
			return nil, err
		}
		if baseOk {
			files = append(files, NewConflictFile(path, ours, theirs, base))
		} else {
			files = append(files, NewConflictFileWithoutBase(path, ours, theirs))
		}
	}
	return files, nil
}
