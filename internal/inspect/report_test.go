package inspect

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/storage"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

type fixture struct {
	ledger *ledger.Ledger
	ws     workspace.Manager
	staged workspace.Workspace
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tmpDir := t.TempDir()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(tmpDir, "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mgr, err := workspace.NewFSManager(filepath.Join(tmpDir, "workspaces"))
	if err != nil {
		t.Fatalf("NewFSManager: %v", err)
	}
	src := filepath.Join(tmpDir, "brent")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "settings.yml"), []byte("city: brent\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	staged, err := mgr.StageInputs(context.Background(), workspace.StageRequest{Label: "seed_scan", Config: "brent", SourceDir: src})
	if err != nil {
		t.Fatalf("StageInputs: %v", err)
	}
	return fixture{ledger: ledger.New(db), ws: mgr, staged: staged}
}

func (f fixture) record(t *testing.T) string {
	t.Helper()
	param, value := "seed", "5"
	id, err := f.ledger.Record(context.Background(), ledger.RecordRequest{
		Kind:          "ensemble",
		Plugin:        "FabGPDR",
		Config:        "brent",
		Machine:       "archer2",
		Backend:       "slurm",
		Label:         "seed_scan",
		Script:        "ensemble_run",
		WallTime:      "4:00:00",
		Memory:        "16G",
		Cores:         8,
		ArraySize:     10,
		Arguments:     " --starting_infections 500 --seed 5",
		WorkspaceID:   f.staged.ID,
		ScriptPath:    filepath.Join(f.staged.Dir, "job-1.sh"),
		ScanParameter: &param,
		ScanValue:     &value,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return id
}

func TestBuildReportRendersSubmissionAndArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.record(t)
	if err := f.ledger.MarkSubmitted(ctx, id, "4242"); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	if err := os.WriteFile(filepath.Join(f.staged.OutputDir(), "4242_1.out"), []byte("ok\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := BuildReport(ctx, f.ledger, f.ws, id[:8])
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	for _, want := range []string{
		"ID          : " + id,
		"Status      : submitted",
		"Batch job   : 4242",
		"Machine     : archer2 (slurm)",
		"Resources   : wall_time=4:00:00 memory=16G cores=8 tasks=10",
		"Scan point  : seed=5",
		"inputs     : verified",
		"- 4242_1.out",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestBuildReportFlagsTamperedInputs(t *testing.T) {
	f := newFixture(t)
	id := f.record(t)

	if err := os.WriteFile(filepath.Join(f.staged.InputDir(), "settings.yml"), []byte("city: harrow\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	report, err := Gather(context.Background(), f.ledger, f.ws, id)
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if report.Workspace.Verified || report.Workspace.VerifyError == "" {
		t.Fatalf("expected verification failure, got %+v", report.Workspace)
	}
}

func TestBuildReportPrunedWorkspace(t *testing.T) {
	f := newFixture(t)
	id := f.record(t)
	if err := os.RemoveAll(f.staged.Dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	out, err := BuildReport(context.Background(), f.ledger, f.ws, id)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if !strings.Contains(out, "dir        : <removed>") {
		t.Fatalf("expected removed workspace:\n%s", out)
	}
}

func TestBuildJSONReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.record(t)
	output := "line1\nline2\nboom\n"
	lastErr := "job exited with non-zero status"
	if err := f.ledger.Complete(ctx, id, ledger.StatusFailed, &lastErr, &output); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	raw, err := BuildJSONReport(ctx, f.ledger, f.ws, id)
	if err != nil {
		t.Fatalf("BuildJSONReport: %v", err)
	}
	var report Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if report.Status != "failed" || report.LastError != lastErr {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := strings.Join(report.OutputTail, "|"); got != "line1|line2|boom" {
		t.Fatalf("output tail = %q", got)
	}
	if report.Scan == nil || report.Scan.Value != "5" {
		t.Fatalf("scan = %+v", report.Scan)
	}
}

func TestGatherErrors(t *testing.T) {
	f := newFixture(t)
	if _, err := Gather(context.Background(), f.ledger, f.ws, " "); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := Gather(context.Background(), f.ledger, f.ws, "missing"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestTail(t *testing.T) {
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = "x"
	}
	if got := tail(strings.Join(lines, "\n"), outputTailLines); len(got) != outputTailLines {
		t.Fatalf("tail len = %d", len(got))
	}
	if got := tail("", 5); got != nil {
		t.Fatalf("tail of empty = %v", got)
	}
}
