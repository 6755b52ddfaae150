package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"dupfind/internal/progress"
)

const defaultBufferSize = 1000

// progressEvery throttles progress updates to one per this many files.
const progressEvery = 64

type job struct {
	seq  int64
	path string
}

// Scan walks opts.Root, fingerprints every regular file and groups identical
// content. It fails with ErrInvalidRoot before doing any work if the root is
// unusable and with ErrCancelled if ctx is cancelled before completion.
// Per-file and per-directory problems are collected in Result.Failures.
func Scan(ctx context.Context, opts Options) (*Result, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Progress == nil {
		opts.Progress = progress.NoopSpinnerProgressTracker{}
	}

	hasher, err := NewHasher(opts.Algorithm, opts.SizeThreshold)
	if err != nil {
		return nil, err
	}
	if opts.UseMMap {
		hasher.WithMMap(opts.MinMMapSize)
	}
	m, err := newMatcher(opts)
	if err != nil {
		return nil, err
	}
	root, err := resolveRoot(opts.Root, opts.AbsolutePaths)
	if err != nil {
		return nil, err
	}

	s := &scanner{
		hasher: hasher,
		opts:   opts,
		stats:  newStats(),
		acc:    newAccumulator(),
		prog:   opts.Progress,
	}
	w := &walker{root: root, matcher: m}

	logInfo("Starting scan of %s (algorithm %s, workers %d, threshold %d bytes)",
		root, hasher.Algorithm(), opts.Workers, opts.SizeThreshold)
	s.prog.SetMessage("scanning " + root)

	if opts.Workers == 1 {
		err = s.runSequential(ctx, w)
	} else {
		err = s.runConcurrent(ctx, w)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.prog.SetError(err)
		s.prog.MarkFinished()
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			logWarning("Scan of %s cancelled after %s", root, s.stats)
			return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		logError("Scan of %s failed: %v", root, err)
		return nil, err
	}

	dups := s.acc.duplicates()
	summary := s.acc.summarize(dups)
	summary.Elapsed = time.Since(s.stats.startTime)
	s.prog.SetDone(int(summary.Files))
	s.prog.MarkFinished()

	logInfo("Scan of %s complete: %s", root, summary)
	return &Result{
		Root:       root,
		Algorithm:  hasher.Algorithm(),
		Manifest:   s.acc.manifest(),
		Duplicates: dups,
		Failures:   s.acc.sortedFailures(),
		Stats:      summary,
	}, nil
}

type scanner struct {
	hasher *Hasher
	opts   Options
	stats  *stats
	acc    *accumulator
	prog   progress.SpinnerProgressTracker
}

// process fingerprints one file. Hash failures become part of the outcome.
func (s *scanner) process(ctx context.Context, j job) outcome {
	fp, size, err := s.hasher.Hash(ctx, j.path)
	o := outcome{entry: FileEntry{Seq: j.seq, Path: j.path, Size: size, Fingerprint: fp}}
	if err != nil {
		// a hash interrupted by cancellation is not a file problem
		if ctx.Err() != nil {
			o.entry = FileEntry{}
			return o
		}
		logError("Failed to hash %s: %v", j.path, err)
		o.failure = &Failure{Path: j.path, Kind: HashFailure, Err: err}
	}
	if n := s.stats.record(fp, size); n%progressEvery == 0 {
		s.prog.SetDone(int(n))
	}
	return o
}

func (s *scanner) runSequential(ctx context.Context, w *walker) error {
	w.onFail = func(f Failure) { s.acc.add(outcome{failure: &f}) }
	return w.walk(ctx, func(seq int64, path string) error {
		s.acc.add(s.process(ctx, job{seq: seq, path: path}))
		return nil
	})
}

// runConcurrent feeds paths from a single walker to a bounded pool of
// hashing workers. Results funnel through one channel into the accumulator,
// which is only touched by the calling goroutine.
func (s *scanner) runConcurrent(ctx context.Context, w *walker) error {
	g, gctx := errgroup.WithContext(ctx)
	paths := make(chan job, s.opts.BufferSize)
	results := make(chan outcome, s.opts.BufferSize)

	w.onFail = func(f Failure) {
		select {
		case results <- outcome{failure: &f}:
		case <-gctx.Done():
		}
	}

	g.Go(func() error {
		defer close(paths)
		return w.walk(gctx, func(seq int64, path string) error {
			select {
			case paths <- job{seq: seq, path: path}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error {
			for j := range paths {
				// stop taking new work once cancelled; in-flight hashes drain
				if err := gctx.Err(); err != nil {
					return err
				}
				o := s.process(gctx, j)
				select {
				case results <- o:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	for o := range results {
		s.acc.add(o)
	}
	return <-done
}
