package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/termwright/termwright/internal/socketdir"
)

// newRunCmd returns the `run` command: the normal way to start a
// session. In the foreground (the default) it execs straight into the
// `_daemon` logic and blocks for the life of the session, printing the
// socket path first. With --background it forks a detached `_daemon`
// child — re-exec the same binary under a hidden subcommand, redirect
// its stdio to /dev/null, and return from the parent once the child's
// socket file exists — and returns immediately, once the socket is
// listening.
func newRunCmd() *cobra.Command {
	f := &sessionFlags{}
	var background bool

	cmd := &cobra.Command{
		Use:   "run [flags] [-- <command> [args...]]",
		Short: "Start a new session",
		Long: `Start a new termwright session wrapping the given command under a PTY.

Prints the session's Unix socket path to standard output once it is
ready to accept connections.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !background {
				return runDaemon(f, args)
			}
			return runBackground(f, args)
		},
	}
	registerSessionFlags(cmd, f)
	cmd.Flags().BoolVar(&background, "background", false, "fork the session into the background and return once its socket is listening")
	return cmd
}

// runBackground forks a `_daemon` child carrying the same flags and
// command, then polls for its socket file to appear before returning,
// since the child prints the socket path to its own (redirected)
// stdout, not ours.
func runBackground(f *sessionFlags, args []string) error {
	command, cmdArgs, err := resolveCommand(f, args)
	if err != nil {
		return err
	}

	name := resolveName(f)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	daemonArgs := []string{"_daemon", "--name", name}
	daemonArgs = append(daemonArgs, forwardedFlags(f)...)
	daemonArgs = append(daemonArgs, "--", command)
	daemonArgs = append(daemonArgs, cmdArgs...)

	child := exec.Command(exe, daemonArgs...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	child.Stdin = devNull
	child.Stdout = devNull
	child.Stderr = devNull

	if err := child.Start(); err != nil {
		devNull.Close()
		return fmt.Errorf("start daemon: %w", err)
	}
	go func() {
		child.Wait()
		devNull.Close()
	}()

	sockPath := socketdir.Path(name)
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(sockPath); err == nil {
			fmt.Println(sockPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not start (socket %s not found after 5s)", sockPath)
}

// forwardedFlags reconstructs the subset of sessionFlags that carry
// actual values, to pass through to the forked `_daemon` process. The
// command itself is forwarded as positional args by the caller (already
// resolved via resolveCommand), not re-sent as --command.
func forwardedFlags(f *sessionFlags) []string {
	var out []string
	if f.rows > 0 {
		out = append(out, "--rows", fmt.Sprint(f.rows))
	}
	if f.cols > 0 {
		out = append(out, "--cols", fmt.Sprint(f.cols))
	}
	if f.noDefaultEnv {
		out = append(out, "--no-default-env")
	}
	if f.noOSCEmulation {
		out = append(out, "--no-osc-emulation")
	}
	if f.configPath != "" {
		out = append(out, "--config", f.configPath)
	}
	if f.activityLog != "" {
		out = append(out, "--activity-log", f.activityLog)
	}
	return out
}
