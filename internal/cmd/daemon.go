package cmd

import (
	"fmt"
	"net"
	"os"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/termwright/termwright/internal/protocol"
	"github.com/termwright/termwright/internal/session"
	"github.com/termwright/termwright/internal/socketdir"
)

// newDaemonCmd returns the hidden `_daemon` entrypoint: the process that
// actually owns the PTY, session, and protocol listener. `run` either
// execs straight into this in the foreground or forks it into the
// background and returns once its socket exists, mirroring the
// teacher's own fork-a-hidden-subcommand daemon shape.
func newDaemonCmd() *cobra.Command {
	f := &sessionFlags{}

	cmd := &cobra.Command{
		Use:    "_daemon -- <command> [args...]",
		Short:  "Run a single session and serve it (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(f, args)
		},
	}
	registerSessionFlags(cmd, f)
	return cmd
}

// runDaemon spawns the session, binds its socket, prints the socket
// path to standard output once listening, and serves until a client
// calls `close` or the listener fails.
func runDaemon(f *sessionFlags, args []string) error {
	command, cmdArgs, err := resolveCommand(f, args)
	if err != nil {
		return err
	}

	name := resolveName(f)
	opts, err := buildSessionOptions(f, name, command, cmdArgs)
	if err != nil {
		return err
	}

	dir := socketdir.Dir()
	lock, err := socketdir.AcquireLock(dir, name)
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer releaseLock(lock, name)

	sess, err := session.Start(opts)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	sockPath := socketdir.Path(name)
	os.Remove(sockPath) // stale socket from an unclean prior shutdown
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		sess.Close("listen_failed")
		return fmt.Errorf("listen on %s: %w", sockPath, err)
	}
	if err := os.Chmod(sockPath, 0o600); err != nil {
		ln.Close()
		sess.Close("chmod_failed")
		return fmt.Errorf("chmod socket: %w", err)
	}
	defer func() {
		ln.Close()
		os.Remove(sockPath)
	}()

	timeout := defaultWaitTimeout(f.configPath)
	handler := protocol.NewHandler(sess, opts.ActivityLog, timeout)

	fmt.Println(sockPath)
	printInteractiveHint(sockPath, name)

	served := make(chan struct{})
	go func() {
		handler.Serve(ln)
		close(served)
	}()
	select {
	case <-handler.Done():
	case <-served:
	}
	sess.Close("daemon_exit")
	return nil
}

func releaseLock(lock *flock.Flock, name string) {
	lock.Unlock()
	os.Remove(socketdir.LockPath(name))
}

// printInteractiveHint writes a human-readable hint to stderr when
// stdout looks like an interactive terminal rather than a pipe a
// caller is scripting against; a scripted caller only wants the bare
// socket path on stdout.
func printInteractiveHint(sockPath, name string) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	fmt.Fprintf(os.Stderr, "session %q listening on %s (use `termwrightd stop %s` to end it)\n", name, sockPath, name)
}
