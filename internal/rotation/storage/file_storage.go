package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// historyTimeLayout prefixes history filenames so they sort chronologically
const historyTimeLayout = "20060102-150405.000000000"

// FileStorage implements Storage using the filesystem
type FileStorage struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(baseDir string) *FileStorage {
	return &FileStorage{
		baseDir: baseDir,
	}
}

// DefaultStorageDir returns the default storage directory
func DefaultStorageDir() string {
	if dir := os.Getenv("ROTATION_HISTORY_DIR"); dir != "" {
		return dir
	}

	// Lambda only allows writes under /tmp
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return filepath.Join(os.TempDir(), "idrotate", "rotation")
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "idrotate", "rotation")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "idrotate", "rotation")
	}

	return filepath.Join(os.TempDir(), "idrotate", "rotation")
}

// SaveStatus saves the current rotation status for a secret
func (fs *FileStorage) SaveStatus(status *RotationStatus) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	statusDir := filepath.Join(fs.baseDir, "status")
	if err := os.MkdirAll(statusDir, 0700); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	filename := filepath.Join(statusDir, fmt.Sprintf("%s.json", sanitizeFilename(status.SecretARN)))
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}

	return nil
}

// GetStatus retrieves the current rotation status for a secret
func (fs *FileStorage) GetStatus(secretARN string) (*RotationStatus, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	filename := filepath.Join(fs.baseDir, "status", fmt.Sprintf("%s.json", sanitizeFilename(secretARN)))
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no status found for secret %s", secretARN)
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status RotationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}

// SaveHistory saves a rotation history entry. A missing ID or timestamp
// is filled in.
func (fs *FileStorage) SaveHistory(entry *HistoryEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	historyDir := filepath.Join(fs.baseDir, "history", sanitizeFilename(entry.SecretARN))
	if err := os.MkdirAll(historyDir, 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	filename := filepath.Join(historyDir, fmt.Sprintf("%s-%s.json",
		entry.Timestamp.UTC().Format(historyTimeLayout), sanitizeFilename(entry.ID)))
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

// GetHistory retrieves rotation history for a secret
func (fs *FileStorage) GetHistory(secretARN string, limit int) ([]HistoryEntry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.readHistoryDir(filepath.Join(fs.baseDir, "history", sanitizeFilename(secretARN)), limit)
}

func (fs *FileStorage) readHistoryDir(historyDir string, limit int) ([]HistoryEntry, error) {
	if _, err := os.Stat(historyDir); os.IsNotExist(err) {
		return []HistoryEntry{}, nil
	}

	files, err := os.ReadDir(historyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	// Newest first
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() > files[j].Name()
	})

	entries := []HistoryEntry{}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(historyDir, file.Name()))
		if err != nil {
			continue
		}

		var entry HistoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}

		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}

	return entries, nil
}

// GetAllHistory retrieves rotation history for all secrets
func (fs *FileStorage) GetAllHistory(limit int) ([]HistoryEntry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	historyDir := filepath.Join(fs.baseDir, "history")
	if _, err := os.Stat(historyDir); os.IsNotExist(err) {
		return []HistoryEntry{}, nil
	}

	secretDirs, err := os.ReadDir(historyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	allEntries := []HistoryEntry{}
	for _, secretDir := range secretDirs {
		if !secretDir.IsDir() {
			continue
		}
		entries, err := fs.readHistoryDir(filepath.Join(historyDir, secretDir.Name()), -1)
		if err != nil {
			continue
		}
		allEntries = append(allEntries, entries...)
	}

	sort.SliceStable(allEntries, func(i, j int) bool {
		return allEntries[i].Timestamp.After(allEntries[j].Timestamp)
	})

	if limit > 0 && len(allEntries) > limit {
		allEntries = allEntries[:limit]
	}

	return allEntries, nil
}

// CleanupOldEntries removes history entries older than the specified duration
func (fs *FileStorage) CleanupOldEntries(olderThan time.Duration) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	historyDir := filepath.Join(fs.baseDir, "history")
	cutoffTime := time.Now().Add(-olderThan)

	var removeErrs []string
	err := filepath.WalkDir(historyDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		name := filepath.Base(path)
		if len(name) < len(historyTimeLayout) {
			return nil
		}
		timestamp, err := time.Parse(historyTimeLayout, name[:len(historyTimeLayout)])
		if err != nil || !timestamp.Before(cutoffTime) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			removeErrs = append(removeErrs, err.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(removeErrs) > 0 {
		return fmt.Errorf("failed to remove %d history file(s): %s", len(removeErrs), strings.Join(removeErrs, "; "))
	}
	return nil
}

// sanitizeFilename replaces characters that might be problematic in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}

var _ Storage = (*FileStorage)(nil)
