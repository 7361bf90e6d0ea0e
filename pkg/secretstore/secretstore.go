package secretstore

import (
	"context"
	"errors"
	"sort"
)

// Staging labels understood by the rotation protocol
const (
	StageCurrent  = "AWSCURRENT"
	StagePending  = "AWSPENDING"
	StagePrevious = "AWSPREVIOUS"
)

// ErrNotFound is returned when a secret, version, or stage does not exist
var ErrNotFound = errors.New("secret not found")

// Store is a versioned secret store with staging labels
type Store interface {
	// Describe returns rotation metadata for a secret
	Describe(ctx context.Context, secretID string) (Metadata, error)

	// GetValue reads a single version, selected by ID, stage, or both.
	// An empty ValueRef selects AWSCURRENT.
	GetValue(ctx context.Context, secretID string, ref ValueRef) (SecretValue, error)

	// PutValue creates version versionID with the given stages
	PutValue(ctx context.Context, secretID, versionID, secretString string, stages []string) error

	// MoveStage attaches stage to moveTo and detaches it from removeFrom.
	// removeFrom may be empty when no version holds the stage yet.
	MoveStage(ctx context.Context, secretID, stage, moveTo, removeFrom string) error
}

// Metadata describes a secret's rotation configuration and version labels
type Metadata struct {
	ARN             string
	Name            string
	RotationEnabled bool
	VersionStages   map[string][]string
}

// HasVersion reports whether the version exists in the label map
func (m Metadata) HasVersion(versionID string) bool {
	_, ok := m.VersionStages[versionID]
	return ok
}

// HasStage reports whether versionID carries stage
func (m Metadata) HasStage(versionID, stage string) bool {
	for _, s := range m.VersionStages[versionID] {
		if s == stage {
			return true
		}
	}
	return false
}

// VersionWithStage returns the version holding stage, if any. Versions are
// scanned in sorted order so a corrupt label map still yields a stable answer.
func (m Metadata) VersionWithStage(stage string) (string, bool) {
	versions := make([]string, 0, len(m.VersionStages))
	for v := range m.VersionStages {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	for _, v := range versions {
		if m.HasStage(v, stage) {
			return v, true
		}
	}
	return "", false
}

// ValueRef selects a secret version
type ValueRef struct {
	VersionID string
	Stage     string
}

// ByStage selects the version holding stage
func ByStage(stage string) ValueRef {
	return ValueRef{Stage: stage}
}

// ByVersion selects a version by ID
func ByVersion(versionID string) ValueRef {
	return ValueRef{VersionID: versionID}
}

// SecretValue is one version of a secret
type SecretValue struct {
	ARN           string
	Name          string
	VersionID     string
	SecretString  string
	VersionStages []string
}
