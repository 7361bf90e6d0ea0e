package storage

import (
	"time"
)

// Entry statuses
const (
	StatusSuccess = "success"
	StatusNoop    = "noop"
	StatusFailed  = "failed"
)

// Storage defines the interface for rotation history storage
type Storage interface {
	// SaveStatus saves the current rotation status for a secret
	SaveStatus(status *RotationStatus) error

	// GetStatus retrieves the current rotation status for a secret
	GetStatus(secretARN string) (*RotationStatus, error)

	// SaveHistory saves a rotation history entry
	SaveHistory(entry *HistoryEntry) error

	// GetHistory retrieves rotation history for a secret, newest first
	GetHistory(secretARN string, limit int) ([]HistoryEntry, error)

	// GetAllHistory retrieves rotation history for all secrets, newest first
	GetAllHistory(limit int) ([]HistoryEntry, error)

	// CleanupOldEntries removes history entries older than the specified duration
	CleanupOldEntries(olderThan time.Duration) error
}

// RotationStatus summarizes the step invocations seen for one secret
type RotationStatus struct {
	SecretARN    string    `json:"secret_arn"`
	LastStep     string    `json:"last_step"`
	LastVersion  string    `json:"last_version"`
	LastResult   string    `json:"last_result"`
	LastError    string    `json:"last_error,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
	LastRotation time.Time `json:"last_rotation,omitempty"`

	StepCount          int `json:"step_count"`
	SuccessCount       int `json:"success_count"`
	FailureCount       int `json:"failure_count"`
	CompletedRotations int `json:"completed_rotations"`
}

// Apply folds one history entry into the status
func (s *RotationStatus) Apply(entry *HistoryEntry, finishStep string) {
	s.SecretARN = entry.SecretARN
	s.LastStep = entry.Step
	s.LastVersion = entry.Version
	s.LastResult = entry.Status
	s.LastError = entry.Error
	s.LastUpdated = entry.Timestamp
	s.StepCount++

	switch entry.Status {
	case StatusFailed:
		s.FailureCount++
	default:
		s.SuccessCount++
	}

	if entry.Step == finishStep && entry.Status == StatusSuccess {
		s.CompletedRotations++
		s.LastRotation = entry.Timestamp
	}
}

// HistoryEntry records one rotation step invocation
type HistoryEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	SecretARN string            `json:"secret_arn"`
	Version   string            `json:"version"`
	Step      string            `json:"step"`
	Status    string            `json:"status"` // success, noop, failed
	Duration  time.Duration     `json:"duration"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
