package submit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/plugin"
	"github.com/mattjoyce/ensemblectl/internal/storage"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

type fixture struct {
	ledger *ledger.Ledger
	ws     workspace.Workspace
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ws := workspace.Workspace{ID: "test_brent_0000abcd", Dir: filepath.Join(t.TempDir(), "test_brent_0000abcd")}
	require.NoError(t, os.MkdirAll(ws.InputDir(), 0o755))
	require.NoError(t, os.MkdirAll(ws.OutputDir(), 0o755))
	return fixture{ledger: ledger.New(db), ws: ws}
}

func newTestSubmitter(f fixture, backends map[string]Backend) *Submitter {
	s := NewSubmitter(plugin.NewPathRegistry(), f.ledger, backends)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	n := 0
	s.newID = func() string {
		n++
		return strings.Repeat(string(rune('a'+n-1)), 8) + "-0000-0000-0000-000000000000"
	}
	return s
}

func single(t *testing.T, program, args string) *job.Descriptor {
	t.Helper()
	b, err := job.NewBuilder("")
	require.NoError(t, err)
	d, err := b.Single(job.Target{Plugin: "FabGPDR", Config: "brent", Program: program, Machine: "localhost"},
		job.DefaultSinglePreset(), args)
	require.NoError(t, err)
	return d
}

func ensemble(t *testing.T, program, args string, size int) *job.Descriptor {
	t.Helper()
	b, err := job.NewBuilder("")
	require.NoError(t, err)
	p := job.DefaultEnsemblePreset()
	p.Size = size
	d, err := b.Ensemble(job.Target{Plugin: "FabGPDR", Config: "brent", Program: program, Machine: "archer2"}, p, args)
	require.NoError(t, err)
	return d
}

func writeExecutable(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestSubmit_LocalSingle(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f, nil)

	r, err := s.Submit(context.Background(), Request{
		Descriptor:  single(t, "echo run", " --seed 1 --quicktest true"),
		Workspace:   f.ws,
		MachineName: "localhost",
		Machine:     config.DefaultLocalMachine(),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSucceeded, r.Status)
	assert.Equal(t, "builtin:single_run.tmpl", r.Template)
	assert.Equal(t, filepath.Join(f.ws.Dir, "job-aaaaaaaa.sh"), r.ScriptPath)
	assert.Contains(t, r.Output, "run --seed 1 --quicktest true")

	script, err := os.ReadFile(r.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(script), "#SBATCH --time=0:15:0")
	assert.Contains(t, string(script), "2026-03-01T09:00:00Z")

	got, err := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSucceeded, got.Status)
	assert.Equal(t, "single", got.Kind)
	assert.Equal(t, f.ws.ID, got.WorkspaceID)
	assert.FileExists(t, filepath.Join(f.ws.OutputDir(), "single.log"))
}

func TestSubmit_LocalEnsembleRunsEveryTask(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f, nil)

	m := config.DefaultLocalMachine()
	m.Env = map[string]string{"CITY": "brent"}
	r, err := s.Submit(context.Background(), Request{
		Descriptor:  ensemble(t, "echo", " --seed $ENSEMBLE_TASK_ID --city $CITY", 3),
		Workspace:   f.ws,
		MachineName: "localhost",
		Machine:     m,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSucceeded, r.Status)
	for _, want := range []string{"--seed 1 --city brent", "--seed 2 --city brent", "--seed 3 --city brent"} {
		assert.Contains(t, r.Output, want)
	}
	assert.FileExists(t, filepath.Join(f.ws.OutputDir(), "task-3.log"))

	script, err := os.ReadFile(r.ScriptPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(script), "#!/bin/sh\n#SBATCH --array=1-3\n"))
}

func TestSubmit_LocalFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f, nil)

	r, err := s.Submit(context.Background(), Request{
		Descriptor:  single(t, "false", ""),
		Workspace:   f.ws,
		MachineName: "localhost",
		Machine:     config.DefaultLocalMachine(),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, r.Status)

	got, err := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, got.Status)
	require.NotNil(t, got.LastError)
}

func TestSubmit_Slurm(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f, nil)

	argsFile := filepath.Join(t.TempDir(), "args")
	sbatch := writeExecutable(t, "sbatch", `echo "$@" > `+argsFile+`
echo "Submitted batch job 4242"
`)
	m := config.DefaultSlurmMachine()
	m.SubmitCommand = sbatch + " --parsable-not"
	m.Partition = "standard"

	r, err := s.Submit(context.Background(), Request{
		Descriptor:  ensemble(t, "", " --seed $SLURM_ARRAY_TASK_ID", 25),
		Workspace:   f.ws,
		MachineName: "archer2",
		Machine:     m,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSubmitted, r.Status)
	assert.Equal(t, "4242", r.BackendJobID)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--parsable-not "+r.ScriptPath+"\n", string(args))

	script, err := os.ReadFile(r.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(script), "#SBATCH --partition=standard")
	assert.Contains(t, string(script), "./run.sh  --seed $SLURM_ARRAY_TASK_ID")

	got, err := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSubmitted, got.Status)
	require.NotNil(t, got.BackendJobID)
	assert.Equal(t, "4242", *got.BackendJobID)
}

func TestSubmit_SlurmRemoteUsesStdin(t *testing.T) {
	f := newFixture(t)
	stdinFile := filepath.Join(t.TempDir(), "stdin")
	ssh := writeExecutable(t, "ssh", `cat > `+stdinFile+`
echo "$@" >> `+stdinFile+`
echo "1234;archer2"
`)
	s := newTestSubmitter(f, map[string]Backend{config.BackendSlurm: &SlurmBackend{ssh: ssh}})

	m := config.DefaultSlurmMachine()
	m.Remote = "user@login.archer2.ac.uk"
	// Same path on both sides: a shared filesystem needs no copy.
	m.WorkspaceDir = filepath.Dir(f.ws.Dir)
	r, err := s.Submit(context.Background(), Request{
		Descriptor:  single(t, "", " --seed 3"),
		Workspace:   f.ws,
		MachineName: "archer2",
		Machine:     m,
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", r.BackendJobID)

	sent, err := os.ReadFile(stdinFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(sent), "#!/bin/sh\n"))
	assert.Contains(t, string(sent), f.ws.InputDir())
	assert.True(t, strings.HasSuffix(string(sent), "user@login.archer2.ac.uk sbatch\n"))
}

func TestSubmit_SlurmRemoteStagesWorkspace(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	callsFile := filepath.Join(dir, "calls")
	stdinFile := filepath.Join(dir, "stdin")
	ssh := writeExecutable(t, "ssh", `echo "ssh $*" >> `+callsFile+`
if [ "$2" = mkdir ]; then exit 0; fi
cat > `+stdinFile+`
echo "Submitted batch job 777"
`)
	scp := writeExecutable(t, "scp", `echo "scp $*" >> `+callsFile+"\n")
	s := newTestSubmitter(f, map[string]Backend{config.BackendSlurm: &SlurmBackend{ssh: ssh, scp: scp}})

	m := config.DefaultSlurmMachine()
	m.Remote = "user@login.archer2.ac.uk"
	m.WorkspaceDir = "/work/e123/user/ensemblectl"
	r, err := s.Submit(context.Background(), Request{
		Descriptor:  single(t, "", " --seed 3"),
		Workspace:   f.ws,
		MachineName: "archer2",
		Machine:     m,
	})
	require.NoError(t, err)
	assert.Equal(t, "777", r.BackendJobID)

	calls, err := os.ReadFile(callsFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ssh user@login.archer2.ac.uk mkdir -p '/work/e123/user/ensemblectl'",
		"scp -rpq " + f.ws.Dir + " user@login.archer2.ac.uk:/work/e123/user/ensemblectl/",
		"ssh user@login.archer2.ac.uk sbatch",
	}, strings.Split(strings.TrimSpace(string(calls)), "\n"))

	sent, err := os.ReadFile(stdinFile)
	require.NoError(t, err)
	assert.Contains(t, string(sent), "/work/e123/user/ensemblectl/test_brent_0000abcd/input")
	assert.NotContains(t, string(sent), f.ws.Dir)

	local, err := os.ReadFile(r.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, string(sent), string(local))
}

func TestSubmit_SlurmRemoteStagingFailure(t *testing.T) {
	f := newFixture(t)
	stdinFile := filepath.Join(t.TempDir(), "stdin")
	ssh := writeExecutable(t, "ssh", `if [ "$2" = mkdir ]; then exit 0; fi
cat > `+stdinFile+`
echo "Submitted batch job 777"
`)
	scp := writeExecutable(t, "scp", "echo 'scp: permission denied' >&2\nexit 1\n")
	s := newTestSubmitter(f, map[string]Backend{config.BackendSlurm: &SlurmBackend{ssh: ssh, scp: scp}})

	m := config.DefaultSlurmMachine()
	m.Remote = "user@login.archer2.ac.uk"
	m.WorkspaceDir = "/work/e123/user/ensemblectl"
	r, err := s.Submit(context.Background(), Request{
		Descriptor:  single(t, "", ""),
		Workspace:   f.ws,
		MachineName: "archer2",
		Machine:     m,
	})
	require.ErrorContains(t, err, "stage workspace on user@login.archer2.ac.uk")
	require.ErrorContains(t, err, "permission denied")
	assert.Equal(t, ledger.StatusFailed, r.Status)
	assert.NoFileExists(t, stdinFile, "sbatch must not run after a failed copy")
}

func TestSubmit_RemoteRequiresWorkspaceDir(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f, nil)

	m := config.DefaultSlurmMachine()
	m.Remote = "user@login.archer2.ac.uk"
	_, err := s.Submit(context.Background(), Request{
		Descriptor:  single(t, "", ""),
		Workspace:   f.ws,
		MachineName: "archer2",
		Machine:     m,
	})
	require.ErrorContains(t, err, `machine "archer2": remote "user@login.archer2.ac.uk" has no workspace_dir`)

	list, err := f.ledger.List(context.Background(), ledger.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRemoteDir(t *testing.T) {
	ws := workspace.Workspace{ID: "run_1", Dir: "/home/u/ws/run_1"}

	dir, err := RemoteDir(ws, config.MachineConfig{Backend: config.BackendSlurm})
	require.NoError(t, err)
	assert.Empty(t, dir)

	dir, err = RemoteDir(ws, config.MachineConfig{Remote: "hpc", WorkspaceDir: "/work/u/"})
	require.NoError(t, err)
	assert.Equal(t, "/work/u/run_1", dir)
}

func TestSubmit_SlurmRejection(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f, nil)

	m := config.DefaultSlurmMachine()
	m.SubmitCommand = writeExecutable(t, "sbatch", "echo 'sbatch: error: invalid partition' >&2\nexit 1\n")
	r, err := s.Submit(context.Background(), Request{
		Descriptor:  single(t, "", ""),
		Workspace:   f.ws,
		MachineName: "archer2",
		Machine:     m,
	})
	require.ErrorContains(t, err, "invalid partition")
	assert.Equal(t, ledger.StatusFailed, r.Status)

	got, gerr := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, gerr)
	assert.Equal(t, ledger.StatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "invalid partition")
}

func TestSubmit_DryRunOverridesBackend(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f, nil)

	m := config.DefaultSlurmMachine()
	m.SubmitCommand = "/nonexistent/sbatch"
	r, err := s.Submit(context.Background(), Request{
		Descriptor:  single(t, "", " --seed 1"),
		Workspace:   f.ws,
		MachineName: "archer2",
		Machine:     m,
		DryRun:      true,
		Scan:        &ScanPoint{Parameter: "seed", Value: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDryRun, r.Status)
	assert.Equal(t, config.BackendDryRun, r.Backend)
	assert.FileExists(t, r.ScriptPath)

	got, err := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ScanParameter)
	assert.Equal(t, "seed", *got.ScanParameter)
}

func TestSubmit_Errors(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f, nil)

	_, err := s.Submit(context.Background(), Request{})
	assert.Error(t, err)

	_, err = s.Submit(context.Background(), Request{
		Descriptor: single(t, "", ""),
		Workspace:  f.ws,
		Machine:    config.MachineConfig{Backend: "pbs"},
	})
	assert.ErrorContains(t, err, `unknown backend "pbs"`)

	list, err := f.ledger.List(context.Background(), ledger.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "nothing recorded before a backend is chosen")
}

func TestParseBatchJobID(t *testing.T) {
	tests := []struct {
		out     string
		want    string
		wantErr bool
	}{
		{out: "Submitted batch job 2723147\n", want: "2723147"},
		{out: "sbatch: warning: x\nSubmitted batch job 9", want: "9"},
		{out: "5512\n", want: "5512"},
		{out: "5512;cluster2\n", want: "5512"},
		{out: "", wantErr: true},
		{out: "error: no", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseBatchJobID(tt.out)
		if tt.wantErr {
			assert.Error(t, err, tt.out)
			continue
		}
		require.NoError(t, err, tt.out)
		assert.Equal(t, tt.want, got)
	}
}
