package artifacts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bilisub/internal/fileutil"
	"bilisub/internal/logging"
)

const (
	stagingDirName = ".staging"
	// ReportName is the per-item and per-run report file name.
	ReportName = "report.json"
	// AudioName is the retained audio file name.
	AudioName = "audio.m4a"
)

// ErrNotFound is returned when a task directory or file does not exist.
var ErrNotFound = errors.New("artifact not found")

// Layout maps task ids to directories under the output root.
type Layout struct {
	root   string
	logger *slog.Logger
}

// NewLayout returns a layout rooted at outputDir.
func NewLayout(outputDir string, logger *slog.Logger) *Layout {
	return &Layout{root: outputDir, logger: logging.NewComponentLogger(logger, "artifacts")}
}

// Root returns the output directory.
func (l *Layout) Root() string { return l.root }

// StagingRoot returns the directory holding in-progress task output.
func (l *Layout) StagingRoot() string { return filepath.Join(l.root, stagingDirName) }

// ItemDir returns the committed directory for a task.
func (l *Layout) ItemDir(id string) string { return filepath.Join(l.root, id) }

func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid task id %q", id)
	}
	return nil
}

// Stage creates a fresh staging directory for a task, clearing any leftover
// from an interrupted earlier attempt.
func (l *Layout) Stage(id string) (*Staging, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(l.StagingRoot(), id)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Staging{dir: dir, final: l.ItemDir(id)}, nil
}

// Remove deletes a task's committed and staged output. Missing directories
// are not an error.
func (l *Layout) Remove(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	var errs []error
	for _, dir := range []string{l.ItemDir(id), filepath.Join(l.StagingRoot(), id)} {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("remove artifacts for %s: %w", id, err)
	}
	l.logger.Debug("removed task artifacts", logging.String(logging.FieldItemID, id))
	return nil
}

// Files lists the regular files in a task directory, sorted by name.
func (l *Layout) Files(id string) ([]string, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.ItemDir(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Path resolves a file inside a task directory. Names that would escape the
// directory are rejected.
func (l *Layout) Path(id, name string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid file name %q", ErrNotFound, name)
	}
	path := filepath.Join(l.ItemDir(id), name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrNotFound, id, name)
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, id, name)
	}
	return path, nil
}

// Staging is a task's in-progress output directory.
type Staging struct {
	dir   string
	final string
	files []string
	done  bool
}

// Dir returns the staging directory.
func (s *Staging) Dir() string { return s.dir }

// FinalDir returns where Commit will place the files.
func (s *Staging) FinalDir() string { return s.final }

// Files returns the names written so far, in write order.
func (s *Staging) Files() []string { return append([]string(nil), s.files...) }

// WriteFile atomically writes one artifact into the staging directory.
func (s *Staging) WriteFile(name string, data []byte) error {
	if s.done {
		return fmt.Errorf("staging for %s already closed", filepath.Base(s.final))
	}
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	s.files = append(s.files, name)
	return nil
}

// WriteJSON writes v as an indented JSON artifact.
func (s *Staging) WriteJSON(name string, v any) error {
	if s.done {
		return fmt.Errorf("staging for %s already closed", filepath.Base(s.final))
	}
	if err := fileutil.WriteJSONAtomic(filepath.Join(s.dir, name), v); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	s.files = append(s.files, name)
	return nil
}

// Commit replaces the task directory with the staged files.
func (s *Staging) Commit() (string, error) {
	if s.done {
		return "", fmt.Errorf("staging for %s already closed", filepath.Base(s.final))
	}
	if err := os.RemoveAll(s.final); err != nil {
		return "", fmt.Errorf("clear previous output: %w", err)
	}
	if err := os.Rename(s.dir, s.final); err != nil {
		return "", fmt.Errorf("commit output: %w", err)
	}
	s.done = true
	return s.final, nil
}

// Discard removes the staging directory. It is a no-op after Commit.
func (s *Staging) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	return os.RemoveAll(s.dir)
}
