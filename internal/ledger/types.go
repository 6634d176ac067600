package ledger

import (
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusSubmitted Status = "submitted"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDryRun    Status = "dry_run"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusDryRun:
		return true
	}
	return false
}

// Submission is one recorded dispatch.
type Submission struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Plugin        string     `json:"plugin"`
	Config        string     `json:"config"`
	Machine       string     `json:"machine"`
	Backend       string     `json:"backend"`
	Label         string     `json:"label"`
	Script        string     `json:"script"`
	Program       string     `json:"program"`
	WallTime      string     `json:"wall_time"`
	Memory        string     `json:"memory"`
	Cores         int        `json:"cores"`
	ArraySize     int        `json:"array_size"`
	Arguments     string     `json:"arguments"`
	WorkspaceID   string     `json:"workspace_id"`
	ScriptPath    string     `json:"script_path"`
	ScanParameter *string    `json:"scan_parameter,omitempty"`
	ScanValue     *string    `json:"scan_value,omitempty"`
	Status        Status     `json:"status"`
	BackendJobID  *string    `json:"backend_job_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	Output        *string    `json:"output,omitempty"`
}

type RecordRequest struct {
	// ID is generated when empty.
	ID            string
	Kind          string
	Plugin        string
	Config        string
	Machine       string
	Backend       string
	Label         string
	Script        string
	Program       string
	WallTime      string
	Memory        string
	Cores         int
	ArraySize     int
	Arguments     string
	WorkspaceID   string
	ScriptPath    string
	ScanParameter *string
	ScanValue     *string
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	Plugin string
	Status Status
	Limit  int
}

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAmbiguousID        = errors.New("submission id prefix is ambiguous")
)
