package worker

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ppiankov/certgrade/internal/document"
	"github.com/ppiankov/certgrade/internal/model"
)

// Validator validates one document file
type Validator interface {
	ValidateFile(ctx context.Context, path string) (*model.ValidationReport, error)
}

// DocumentJob validates one document
type DocumentJob struct {
	Index     int
	Path      string
	Validator Validator
}

// Execute executes the validation job
func (j *DocumentJob) Execute(ctx context.Context) Result {
	start := time.Now()
	report, err := j.Validator.ValidateFile(ctx, j.Path)
	return &DocumentResult{
		Index:   j.Index,
		Path:    j.Path,
		Report:  report,
		Error:   err,
		Elapsed: time.Since(start),
	}
}

// DocumentResult represents the result of a validation job
type DocumentResult struct {
	Index   int
	Path    string
	Report  *model.ValidationReport
	Error   error
	Elapsed time.Duration
}

// GetError returns the error from the validation result
func (r *DocumentResult) GetError() error {
	return r.Error
}

// BatchProcessor validates many documents concurrently
type BatchProcessor struct {
	validator   Validator
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(validator Validator, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		validator:   validator,
		concurrency: concurrency,
	}
}

// ProcessPaths validates every path and returns results in input order.
// Documents never started because ctx ended carry ctx's error.
func (b *BatchProcessor) ProcessPaths(ctx context.Context, paths []string) []*DocumentResult {
	if len(paths) == 0 {
		return []*DocumentResult{}
	}

	jobs := make([]Job, len(paths))
	for i, path := range paths {
		jobs[i] = &DocumentJob{Index: i, Path: path, Validator: b.validator}
	}

	pool := NewPool(ctx, b.concurrency)
	results := pool.Run(jobs)

	out := make([]*DocumentResult, len(paths))
	for _, r := range results {
		dr := r.(*DocumentResult)
		out[dr.Index] = dr
	}
	for i, r := range out {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i] = &DocumentResult{Index: i, Path: paths[i], Error: err}
		}
	}
	return out
}

// ProcessInputs expands inputs (see ExpandInputs) and validates the documents found
func (b *BatchProcessor) ProcessInputs(ctx context.Context, inputs []string) ([]*DocumentResult, error) {
	paths, err := ExpandInputs(inputs)
	if err != nil {
		return nil, err
	}
	return b.ProcessPaths(ctx, paths), nil
}

// ExpandInputs turns command line inputs into document paths, deduplicated in first-seen order.
//
//   - "@list.txt" reads one input per line (blank lines and # comments skipped)
//   - a directory yields every supported document below it
//   - a glob ("certs/**/*.pdf") is expanded with ** support
//   - anything else is taken as a file path
func ExpandInputs(inputs []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, in := range inputs {
		if list, ok := strings.CutPrefix(in, "@"); ok {
			lines, err := ReadListFile(list)
			if err != nil {
				return nil, err
			}
			expanded, err := ExpandInputs(lines)
			if err != nil {
				return nil, err
			}
			for _, p := range expanded {
				add(p)
			}
			continue
		}

		matches, err := expandOne(in)
		if err != nil {
			return nil, err
		}
		for _, p := range matches {
			add(p)
		}
	}
	return paths, nil
}

func expandOne(in string) ([]string, error) {
	if info, err := os.Stat(in); err == nil {
		if info.IsDir() {
			return walkDocuments(in)
		}
		return []string{in}, nil
	}

	if !strings.ContainsAny(in, "*?[{") {
		return nil, fmt.Errorf("input %s: %w", in, fs.ErrNotExist)
	}

	matches, err := doublestar.FilepathGlob(in)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", in, err)
	}
	var files []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() && document.Supported(m) {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func walkDocuments(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if document.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadListFile reads inputs from a file (one per line)
func ReadListFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
