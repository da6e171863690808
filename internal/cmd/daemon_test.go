package cmd

import (
	"testing"
	"time"

	"github.com/termwright/termwright/internal/socketdir"
)

// startTestDaemon runs a real `_daemon` session against /bin/cat under a
// temp HOME (so it never touches the user's real ~/.termwright), waits
// for its socket to appear, and registers cleanup via `stop`.
func startTestDaemon(t *testing.T, name string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	f := &sessionFlags{name: name}
	done := make(chan error, 1)
	go func() {
		done <- runDaemon(f, []string{"/bin/cat"})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := socketPathFor(name); err == nil {
			t.Cleanup(func() {
				request(name, "close", nil)
				<-done
			})
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("daemon for %q never created its socket", name)
}

func TestDaemonStatusRoundTrip(t *testing.T) {
	startTestDaemon(t, "cmd-test-status")

	resp, err := request("cmd-test-status", "status", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("status error: %+v", resp.Error)
	}
}

func TestDaemonListIncludesRunningSession(t *testing.T) {
	startTestDaemon(t, "cmd-test-list")

	entries, err := socketdir.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Name == "cmd-test-list" {
			found = true
		}
	}
	if !found {
		t.Fatalf("List() = %+v, want an entry for cmd-test-list", entries)
	}
}

func TestSocketPathForUnknownSession(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := socketPathFor("does-not-exist"); err == nil {
		t.Fatal("expected an error for an unknown session name")
	}
}
