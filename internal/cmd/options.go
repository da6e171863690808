package cmd

import (
	"fmt"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/termwright/termwright/internal/activitylog"
	"github.com/termwright/termwright/internal/config"
	"github.com/termwright/termwright/internal/iopump"
	"github.com/termwright/termwright/internal/ptyhost"
	"github.com/termwright/termwright/internal/session"
)

// sessionFlags holds the flag values shared by `run` and the hidden
// `_daemon` entrypoint it forks into: everything needed to build a
// session.Options.
type sessionFlags struct {
	name           string
	commandStr     string
	rows, cols     int
	noDefaultEnv   bool
	noOSCEmulation bool
	configPath     string
	activityLog    string
}

// registerSessionFlags attaches the flags a session-spawning command
// needs to cmd.
func registerSessionFlags(cmd *cobra.Command, f *sessionFlags) {
	cmd.Flags().StringVar(&f.name, "name", "", "session name (a UUID is generated if omitted)")
	cmd.Flags().StringVar(&f.commandStr, "command", "", "child command as a single shell-quoted string (alternative to positional args)")
	cmd.Flags().IntVar(&f.rows, "rows", 0, "PTY row count (default from config, usually 24)")
	cmd.Flags().IntVar(&f.cols, "cols", 0, "PTY column count (default from config, usually 80)")
	cmd.Flags().BoolVar(&f.noDefaultEnv, "no-default-env", false, "don't inject TERM/COLORTERM defaults or strip NO_COLOR")
	cmd.Flags().BoolVar(&f.noOSCEmulation, "no-osc-emulation", false, "don't answer cursor-position/OSC color queries on the child's behalf")
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to config.yaml (default ~/.termwright/config.yaml)")
	cmd.Flags().StringVar(&f.activityLog, "activity-log", "", "path to a JSONL activity log (disabled if omitted)")
}

// resolveCommand picks the child command and args from either the
// positional args (after `--`) or --command, splitting the latter with
// the same shell-word rules a real shell would apply.
func resolveCommand(f *sessionFlags, args []string) (string, []string, error) {
	if f.commandStr != "" {
		if len(args) > 0 {
			return "", nil, fmt.Errorf("pass either --command or a positional command, not both")
		}
		words, err := shlex.Split(f.commandStr)
		if err != nil {
			return "", nil, fmt.Errorf("parse --command: %w", err)
		}
		if len(words) == 0 {
			return "", nil, fmt.Errorf("--command is empty")
		}
		return words[0], words[1:], nil
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("a command is required (pass it after -- or with --command)")
	}
	return args[0], args[1:], nil
}

// resolveName returns f.name, generating a fresh UUID if it is empty.
func resolveName(f *sessionFlags) string {
	if f.name != "" {
		return f.name
	}
	return uuid.NewString()
}

// buildSessionOptions merges flags over the on-disk config's defaults.
// name is the session name resolved via resolveName, used to attribute
// the activity log.
func buildSessionOptions(f *sessionFlags, name, command string, args []string) (session.Options, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return session.Options{}, fmt.Errorf("load config: %w", err)
	}
	d := cfg.Session

	rows := f.rows
	if rows <= 0 {
		rows = d.Rows
	}
	cols := f.cols
	if cols <= 0 {
		cols = d.Cols
	}

	log := activitylog.Nop()
	if f.activityLog != "" {
		log = activitylog.New(true, f.activityLog, name, command)
	}

	return session.Options{
		Command: command,
		Args:    args,
		Rows:    rows,
		Cols:    cols,
		EnvPolicy: ptyhost.EnvPolicy{
			NoDefaultEnv: f.noDefaultEnv || d.NoDefaultEnv,
			Term:         d.Term,
		},
		IOPolicy: iopump.Policy{
			NoOSCEmulation: f.noOSCEmulation || d.NoOSCEmulation,
		},
		WriteTimeout: d.WriteTimeout(),
		KillGrace:    d.KillGrace(),
		ActivityLog:  log,
	}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func defaultWaitTimeout(path string) time.Duration {
	cfg, err := loadConfig(path)
	if err != nil {
		return 30 * time.Second
	}
	return cfg.Session.DefaultWaitTimeout()
}
