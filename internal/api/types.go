package api

import "time"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	PluginsLoaded int    `json:"plugins_loaded"`
}

// PluginSummary is one entry of GET /plugins.
type PluginSummary struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// PluginListResponse is returned by GET /plugins.
type PluginListResponse struct {
	Plugins []PluginSummary `json:"plugins"`
}

// PluginArg is a recognised simulation parameter and its default.
type PluginArg struct {
	Name    string `json:"name"`
	Default string `json:"default"`
}

// PluginDetailResponse is returned by GET /plugins/{plugin}.
type PluginDetailResponse struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Description string      `json:"description,omitempty"`
	Program     string      `json:"program,omitempty"`
	Args        []PluginArg `json:"args"`
	Configs     []string    `json:"configs"`
}

// SubmissionResponse is the JSON form of one ledger row.
type SubmissionResponse struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Plugin        string     `json:"plugin"`
	Config        string     `json:"config"`
	Machine       string     `json:"machine"`
	Backend       string     `json:"backend"`
	Label         string     `json:"label"`
	Status        string     `json:"status"`
	BackendJobID  string     `json:"backend_job_id,omitempty"`
	Arguments     string     `json:"arguments"`
	WallTime      string     `json:"wall_time,omitempty"`
	Memory        string     `json:"memory,omitempty"`
	Cores         int        `json:"cores"`
	ArraySize     int        `json:"array_size,omitempty"`
	WorkspaceID   string     `json:"workspace_id,omitempty"`
	ScanParameter string     `json:"scan_parameter,omitempty"`
	ScanValue     string     `json:"scan_value,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// SubmissionListResponse is returned by GET /submissions.
type SubmissionListResponse struct {
	Submissions []SubmissionResponse `json:"submissions"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}
