// Package inspect builds per-submission reports from the ledger and the run
// workspace.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

const outputTailLines = 20

// SubmissionGetter loads submissions by id or unique prefix.
type SubmissionGetter interface {
	Get(ctx context.Context, id string) (*ledger.Submission, error)
}

// Report is the structured JSON representation of a submission report.
type Report struct {
	SubmissionID string         `json:"submission_id"`
	Kind         string         `json:"kind"`
	Plugin       string         `json:"plugin"`
	Config       string         `json:"config"`
	Machine      string         `json:"machine"`
	Backend      string         `json:"backend"`
	Status       string         `json:"status"`
	BackendJobID string         `json:"backend_job_id,omitempty"`
	Label        string         `json:"label"`
	Script       string         `json:"script"`
	Program      string         `json:"program,omitempty"`
	Arguments    string         `json:"arguments"`
	Resources    Resources      `json:"resources"`
	Scan         *Scan          `json:"scan,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	SubmittedAt  *time.Time     `json:"submitted_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	Workspace    WorkspaceState `json:"workspace"`
	OutputTail   []string       `json:"output_tail,omitempty"`
}

// Resources is the resource request of a submission.
type Resources struct {
	WallTime  string `json:"wall_time,omitempty"`
	Memory    string `json:"memory,omitempty"`
	Cores     int    `json:"cores"`
	ArraySize int    `json:"array_size,omitempty"`
}

// Scan identifies the scan point a submission belongs to.
type Scan struct {
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
}

// WorkspaceState describes the run workspace on disk.
type WorkspaceState struct {
	ID          string   `json:"id,omitempty"`
	Dir         string   `json:"dir,omitempty"`
	Present     bool     `json:"present"`
	Verified    bool     `json:"verified"`
	VerifyError string   `json:"verify_error,omitempty"`
	ScriptPath  string   `json:"script_path,omitempty"`
	Artifacts   []string `json:"artifacts,omitempty"`
}

// BuildReport renders a terminal-friendly report for a submission.
func BuildReport(ctx context.Context, subs SubmissionGetter, ws workspace.Manager, id string) (string, error) {
	report, err := Gather(ctx, subs, ws, id)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Submission Report\n")
	fmt.Fprintf(&out, "ID          : %s\n", report.SubmissionID)
	fmt.Fprintf(&out, "Kind        : %s\n", report.Kind)
	fmt.Fprintf(&out, "Plugin      : %s (config %s)\n", report.Plugin, report.Config)
	fmt.Fprintf(&out, "Machine     : %s (%s)\n", report.Machine, report.Backend)
	fmt.Fprintf(&out, "Status      : %s\n", report.Status)
	fmt.Fprintf(&out, "Batch job   : %s\n", renderUnset(report.BackendJobID, "<none>"))
	fmt.Fprintf(&out, "Label       : %s\n", report.Label)
	fmt.Fprintf(&out, "Script      : %s\n", report.Script)
	fmt.Fprintf(&out, "Program     : %s\n", renderUnset(report.Program, "<default>"))
	fmt.Fprintf(&out, "Arguments   : %s\n", renderUnset(report.Arguments, "<none>"))
	fmt.Fprintf(&out, "Resources   : wall_time=%s memory=%s cores=%d",
		renderUnset(report.Resources.WallTime, "-"), renderUnset(report.Resources.Memory, "-"), report.Resources.Cores)
	if report.Resources.ArraySize > 0 {
		fmt.Fprintf(&out, " tasks=%d", report.Resources.ArraySize)
	}
	fmt.Fprintf(&out, "\n")
	if report.Scan != nil {
		fmt.Fprintf(&out, "Scan point  : %s=%s\n", report.Scan.Parameter, report.Scan.Value)
	}
	fmt.Fprintf(&out, "Created     : %s\n", report.CreatedAt.Format(time.RFC3339))
	if report.SubmittedAt != nil {
		fmt.Fprintf(&out, "Submitted   : %s\n", report.SubmittedAt.Format(time.RFC3339))
	}
	if report.CompletedAt != nil {
		fmt.Fprintf(&out, "Completed   : %s\n", report.CompletedAt.Format(time.RFC3339))
	}
	if report.LastError != "" {
		fmt.Fprintf(&out, "Last error  : %s\n", report.LastError)
	}
	fmt.Fprintf(&out, "\n")

	w := report.Workspace
	fmt.Fprintf(&out, "Workspace   : %s\n", renderUnset(w.ID, "<none>"))
	switch {
	case w.ID == "":
	case !w.Present:
		fmt.Fprintf(&out, "    dir        : <removed>\n")
	default:
		fmt.Fprintf(&out, "    dir        : %s\n", w.Dir)
		fmt.Fprintf(&out, "    script     : %s\n", renderUnset(w.ScriptPath, "<none>"))
		if w.Verified {
			fmt.Fprintf(&out, "    inputs     : verified\n")
		} else {
			fmt.Fprintf(&out, "    inputs     : NOT VERIFIED (%s)\n", w.VerifyError)
		}
		if len(w.Artifacts) == 0 {
			fmt.Fprintf(&out, "    artifacts  : <none>\n")
		} else {
			fmt.Fprintf(&out, "    artifacts  :\n")
			for _, artifact := range w.Artifacts {
				fmt.Fprintf(&out, "      - %s\n", artifact)
			}
		}
	}

	if len(report.OutputTail) > 0 {
		fmt.Fprintf(&out, "\nOutput (last %d lines):\n", len(report.OutputTail))
		for _, line := range report.OutputTail {
			fmt.Fprintf(&out, "    %s\n", line)
		}
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable report.
func BuildJSONReport(ctx context.Context, subs SubmissionGetter, ws workspace.Manager, id string) (string, error) {
	report, err := Gather(ctx, subs, ws, id)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

// Gather collects the report data for one submission.
func Gather(ctx context.Context, subs SubmissionGetter, ws workspace.Manager, id string) (*Report, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("submission id is required")
	}
	s, err := subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &Report{
		SubmissionID: s.ID,
		Kind:         s.Kind,
		Plugin:       s.Plugin,
		Config:       s.Config,
		Machine:      s.Machine,
		Backend:      s.Backend,
		Status:       string(s.Status),
		BackendJobID: deref(s.BackendJobID),
		Label:        s.Label,
		Script:       s.Script,
		Program:      s.Program,
		Arguments:    s.Arguments,
		Resources: Resources{
			WallTime:  s.WallTime,
			Memory:    s.Memory,
			Cores:     s.Cores,
			ArraySize: s.ArraySize,
		},
		CreatedAt:   s.CreatedAt,
		SubmittedAt: s.SubmittedAt,
		CompletedAt: s.CompletedAt,
		LastError:   deref(s.LastError),
		OutputTail:  tail(deref(s.Output), outputTailLines),
		Workspace:   WorkspaceState{ID: s.WorkspaceID, ScriptPath: s.ScriptPath},
	}
	if s.ScanParameter != nil {
		report.Scan = &Scan{Parameter: *s.ScanParameter, Value: deref(s.ScanValue)}
	}

	if s.WorkspaceID == "" || ws == nil {
		return report, nil
	}
	opened, err := ws.Open(ctx, s.WorkspaceID)
	if err != nil {
		// pruned workspaces still have a ledger entry
		return report, nil
	}
	report.Workspace.Present = true
	report.Workspace.Dir = opened.Dir
	if err := ws.Verify(ctx, s.WorkspaceID); err != nil {
		report.Workspace.VerifyError = err.Error()
	} else {
		report.Workspace.Verified = true
	}
	artifacts, err := listArtifacts(opened.OutputDir())
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	report.Workspace.Artifacts = artifacts
	return report, nil
}

func listArtifacts(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	artifacts := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == dir || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(artifacts)
	return artifacts, nil
}

func tail(s string, n int) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
