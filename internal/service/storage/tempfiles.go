package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"agent-bff/internal/domain"
)

// TempFiles is the local workspace for uploaded files awaiting ingestion.
// Every path it touches must resolve strictly below root.
type TempFiles struct {
	root   string
	logger *slog.Logger
}

// SavedFile describes a file written by Save.
type SavedFile struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// NewTempFiles creates the root directory if needed and returns a TempFiles
// anchored at its canonical absolute path.
func NewTempFiles(root string, logger *slog.Logger) (*TempFiles, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	abs, err := canonical(root)
	if err != nil {
		return nil, fmt.Errorf("resolve temp root: %w", err)
	}
	return &TempFiles{root: abs, logger: logger.With("component", "tempfiles")}, nil
}

// Root returns the canonical temp root.
func (t *TempFiles) Root() string { return t.root }

// Save writes r to <root>/<uuid>/<base(name)> and returns the upload ID, the
// path relative to root.
func (t *TempFiles) Save(name string, r io.Reader) (*SavedFile, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return nil, domain.ErrValidation("invalid file name %q", name)
	}
	dir := filepath.Join(t.root, domain.NewID())
	if err := os.Mkdir(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, base), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // path is under root
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write upload file: %w", err)
	}

	rel, err := filepath.Rel(t.root, filepath.Join(dir, base))
	if err != nil {
		return nil, err
	}
	return &SavedFile{UploadID: filepath.ToSlash(rel), FileName: base, Size: n}, nil
}

// Resolve maps an upload ID to an absolute path below root. Paths that escape
// root, directly or through a symlink, yield a *domain.SecurityViolationError.
func (t *TempFiles) Resolve(uploadID string) (string, error) {
	if uploadID == "" {
		return "", domain.ErrValidation("upload id is required")
	}
	candidate := filepath.FromSlash(uploadID)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(t.root, candidate)
	}
	resolved, err := canonical(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Check the lexical path so a missing file outside root is still
			// reported as a violation, not as not-found.
			if !t.contains(filepath.Clean(candidate)) {
				return "", t.violation(uploadID)
			}
			return "", domain.ErrNotFound("upload %q not found", uploadID)
		}
		return "", fmt.Errorf("resolve upload %q: %w", uploadID, err)
	}
	if !t.contains(resolved) {
		return "", t.violation(uploadID)
	}
	return resolved, nil
}

// Open resolves uploadID and opens the file for reading.
func (t *TempFiles) Open(uploadID string) (io.ReadCloser, int64, error) {
	path, err := t.Resolve(uploadID)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path) //nolint:gosec // containment checked by Resolve
	if err != nil {
		return nil, 0, fmt.Errorf("open upload: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat upload: %w", err)
	}
	return f, st.Size(), nil
}

// Remove deletes an uploaded file and its per-upload directory once empty.
// A path outside root is refused and left untouched.
func (t *TempFiles) Remove(uploadID string) error {
	path, err := t.Resolve(uploadID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	if dir := filepath.Dir(path); dir != t.root && t.contains(dir) {
		// Only succeeds when empty.
		_ = os.Remove(dir)
	}
	t.logger.Debug("temp file removed", "upload_id", uploadID)
	return nil
}

// contains reports whether path lies strictly below root.
func (t *TempFiles) contains(path string) bool {
	rel, err := filepath.Rel(t.root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func (t *TempFiles) violation(path string) error {
	err := &domain.SecurityViolationError{Path: path, Root: t.root}
	t.logger.Error("refused temp file access outside root", "path", path, "root", t.root)
	return err
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
