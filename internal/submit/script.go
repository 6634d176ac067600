package submit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/mattjoyce/ensemblectl/internal/job"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

// ScriptData is the template context of a job script.
type ScriptData struct {
	ID        string
	Job       *job.Descriptor
	Machine   MachineData
	InputDir  string
	OutputDir string
	Submitted time.Time
}

// MachineData is the machine view exposed to job scripts.
type MachineData struct {
	Name      string
	Partition string
	Account   string
	Env       map[string]string
}

// RenderScript executes a job-script template body.
func RenderScript(name string, body []byte, data ScriptData) ([]byte, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse job script %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render job script %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// ScriptPath is where the job script for submission id is written.
func ScriptPath(ws workspace.Workspace, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(ws.Dir, "job-"+short+".sh")
}

func writeScript(path string, content []byte) error {
	if err := os.WriteFile(path, content, 0o755); err != nil {
		return fmt.Errorf("write job script: %w", err)
	}
	return nil
}
