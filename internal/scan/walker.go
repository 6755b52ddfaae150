package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// resolveRoot checks that root names a readable directory and returns the
// path the walk should start from.
func resolveRoot(root string, absolute bool) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	if absolute {
		abs, err := filepath.Abs(root)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
		}
		root = abs
	}

	linfo, err := os.Lstat(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	// WalkDir never descends into a symlinked root, so walk its target instead
	if linfo.Mode()&fs.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(root)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
		}
		logDebug("Root %s is a symlink, walking %s", root, target)
		root = target
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	f, err := os.Open(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	f.Close()
	return root, nil
}

// walker produces every regular file under root in lexical order, exactly once.
type walker struct {
	root    string
	matcher *matcher
	onFail  func(Failure)
}

// walk calls visit for each regular file with a 1-based discovery sequence.
// Unreadable entries are reported through onFail and skipped. It stops early
// with ctx.Err() on cancellation or with the first error returned by visit.
func (w *walker) walk(ctx context.Context, visit func(seq int64, path string) error) error {
	var seq int64
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			kind := TraversalError
			if errors.Is(err, fs.ErrPermission) {
				kind = TraversalPermissionDenied
			}
			logWarning("Failed to walk %s: %v", path, err)
			w.onFail(Failure{Path: path, Kind: kind, Err: err})
			if d != nil && d.IsDir() && path != w.root {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != w.root && w.matcher.shouldSkipDirectory(d.Name()) {
				logDebug("Skipping directory: %s", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			logDebug("Skipping special file: %s (%s)", path, d.Type())
			return nil
		}
		if !w.matcher.shouldProcessFile(d.Name()) {
			return nil
		}

		seq++
		return visit(seq, path)
	})
}
