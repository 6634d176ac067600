package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mattjoyce/ensemblectl/internal/bridge"
	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/dispatch"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/log"
	"github.com/mattjoyce/ensemblectl/internal/plugin"
	"github.com/mattjoyce/ensemblectl/internal/storage"
	"github.com/mattjoyce/ensemblectl/internal/submit"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

// envPrefix prefixes the environment variables bound to global flags,
// e.g. ENSEMBLECTL_MACHINE.
const envPrefix = "ENSEMBLECTL"

// app carries the global flags and lazily loaded state shared by commands.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer

	cfg *config.Config
}

// newRootCmd builds the command tree. Output goes to stdout and stderr so
// tests can capture it.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:   "ensemblectl",
		Short: "Dispatch simulation runs, ensembles and parameter scans",
		Long: `ensemblectl prepares simulation arguments from a plugin's defaults and
your overrides, stages the chosen run configuration into a fresh workspace and
submits a job script to a local or Slurm machine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config.yaml or its directory (default: discovered)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (default: service.log_level)")
	flags.String("machine", "", "Target machine (default: default_machine)")
	flags.String("plugin", "", "Simulation plugin (default: default_plugin)")
	_ = a.v.BindPFlags(flags)
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	cmd.AddCommand(
		runCmd(a),
		ensembleCmd(a),
		scanCmd(a),
		bridgeCmd(a),
		jobCmd(a),
		pluginCmd(a),
		configCmd(a),
		workspaceCmd(a),
		serveCmd(a),
		versionCmd(a),
	)
	return cmd
}

// config loads the configuration once and sets up logging from it.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadOrDefault(a.v.GetString("config"))
	if err != nil {
		return nil, err
	}
	level := a.v.GetString("log-level")
	if level == "" {
		level = cfg.Service.LogLevel
	}
	log.Setup(level, cfg.Service.LogFormat)
	a.cfg = cfg
	return cfg, nil
}

func (a *app) pluginName(cfg *config.Config) (string, error) {
	if name := a.v.GetString("plugin"); name != "" {
		return name, nil
	}
	if cfg.DefaultPlugin != "" {
		return cfg.DefaultPlugin, nil
	}
	return "", fmt.Errorf("no plugin selected: pass --plugin or set default_plugin")
}

func (a *app) machineName() string {
	return a.v.GetString("machine")
}

// plugins discovers plugins and registers their template and script paths.
func (a *app) plugins(cfg *config.Config) (*plugin.Registry, *plugin.PathRegistry, error) {
	logger := log.WithComponent("plugin")
	reg, err := plugin.Discover(cfg.PluginsDir, func(level, msg string, args ...any) {
		switch level {
		case "debug":
			logger.Debug(msg, args...)
		case "warn":
			logger.Warn(msg, args...)
		case "error":
			logger.Error(msg, args...)
		default:
			logger.Info(msg, args...)
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("plugin discovery in %s: %w", cfg.PluginsDir, err)
	}
	paths := plugin.NewPathRegistry()
	paths.RegisterAll(reg)
	return reg, paths, nil
}

// openLedger opens the submission ledger. The caller closes it.
func (a *app) openLedger(ctx context.Context, cfg *config.Config) (*ledger.Ledger, io.Closer, error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}
	return ledger.New(db), db, nil
}

func (a *app) workspaces(cfg *config.Config) (workspace.Manager, error) {
	mgr, err := workspace.NewFSManager(cfg.Workspace.Dir)
	if err != nil {
		return nil, err
	}
	return mgr, nil
}

// dispatcher wires the full dispatch pipeline. The returned closer releases
// the ledger.
func (a *app) dispatcher(ctx context.Context, cfg *config.Config) (*dispatch.Dispatcher, io.Closer, error) {
	reg, paths, err := a.plugins(cfg)
	if err != nil {
		return nil, nil, err
	}
	ws, err := a.workspaces(cfg)
	if err != nil {
		return nil, nil, err
	}
	l, closer, err := a.openLedger(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	resolver := a.resolver(reg, cfg)
	submitter := submit.NewSubmitter(paths, l, submit.DefaultBackends())
	return dispatch.New(resolver, cfg, workspace.NewStager(ws), submitter), closer, nil
}

// resolver layers presets as built-in, plugin manifest, then config.yaml. It
// takes the raw config layer: cfg.SinglePreset() already carries the
// built-in values and would mask the plugin's.
func (a *app) resolver(reg *plugin.Registry, cfg *config.Config) *plugin.Resolver {
	return plugin.NewResolver(reg, cfg.Presets.Single, cfg.Presets.Ensemble)
}

func (a *app) bridge(cfg *config.Config) *bridge.Bridge {
	return bridge.New(cfg.Bridge.Executable, cfg.Bridge.Timeout, bridge.WithOutput(a.stdout, a.stderr))
}
