// Package file provides file-based persistence implementation for tasks, rules and logs.
//
// Records are stored as JSON documents under <root>/workspaces/<workspace>/. A single
// mutex serializes writes so the compare-and-set operations are atomic within a process.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agencyops/taskflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root  string
	mu    sync.Mutex
	store *store

	taskRepo     *TaskRepository
	timerRepo    *TimerRepository
	ruleRepo     *RuleRepository
	activityRepo *ActivityRepository
	commentRepo  *CommentRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	fp := &Persistence{root: cleanRoot}
	fp.store = &store{root: cleanRoot, mu: &fp.mu}

	fp.taskRepo = &TaskRepository{store: fp.store}
	fp.timerRepo = &TimerRepository{store: fp.store}
	fp.ruleRepo = &RuleRepository{store: fp.store}
	fp.activityRepo = &ActivityRepository{store: fp.store}
	fp.commentRepo = &CommentRepository{store: fp.store}

	return fp
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) TaskRepository() persistence.TaskRepository {
	return fp.taskRepo
}

func (fp *Persistence) TimerRepository() persistence.TimerRepository {
	return fp.timerRepo
}

func (fp *Persistence) RuleRepository() persistence.RuleRepository {
	return fp.ruleRepo
}

func (fp *Persistence) ActivityRepository() persistence.ActivityRepository {
	return fp.activityRepo
}

func (fp *Persistence) CommentRepository() persistence.CommentRepository {
	return fp.commentRepo
}

var errInvalidID = errors.New("identifier contains invalid characters")

// store holds the path layout and JSON helpers shared by the repositories.
type store struct {
	root string
	mu   *sync.Mutex
}

// validateID rejects identifiers that would escape the workspace directory.
func validateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%q: %w", id, errInvalidID)
	}

	return nil
}

func (s *store) dir(workspaceID, kind string) string {
	return filepath.Join(s.root, "workspaces", workspaceID, kind)
}

func (s *store) path(workspaceID, kind, id string) (string, error) {
	if err := validateID(workspaceID); err != nil {
		return "", fmt.Errorf("invalid workspace ID: %w", err)
	}

	if err := validateID(id); err != nil {
		return "", fmt.Errorf("invalid record ID: %w", err)
	}

	return filepath.Join(s.dir(workspaceID, kind), id+".json"), nil
}

// read decodes the file into v. It reports false when the file does not exist.
func (s *store) read(filePath string, v any) (bool, error) {
	body, err := os.ReadFile(filePath) // #nosec G304 -- path is built from validated IDs
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}

	return true, nil
}

// write stores v through a temp file and rename so readers never see partial JSON.
func (s *store) write(filePath string, v any) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filePath), err)
	}

	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	return os.Rename(tmp, filePath)
}

// glob returns the JSON files matching pattern relative to root.
func (s *store) glob(pattern string) ([]string, error) {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return nil, nil
	}

	matches, err := fs.Glob(os.DirFS(s.root), pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", pattern, err)
	}

	return matches, nil
}

// appendLog appends v to the JSON array stored at filePath.
func appendLog[T any](s *store, filePath string, v T) error {
	var entries []T
	if _, err := s.read(filePath, &entries); err != nil {
		return err
	}

	entries = append(entries, v)

	return s.write(filePath, entries)
}
