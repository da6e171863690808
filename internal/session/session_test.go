package session

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"
)

func startSession(t *testing.T, command string, args []string) *Session {
	t.Helper()
	sess, err := Start(Options{
		Command: command,
		Args:    args,
		Rows:    24,
		Cols:    80,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { sess.Close("test_cleanup") })
	return sess
}

func withDeadline(ms int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(ms)*time.Millisecond)
}

func TestEcho(t *testing.T) {
	sess := startSession(t, "/bin/sh", []string{"-c", "printf HELLO"})

	ctx, cancel := withDeadline(1000)
	defer cancel()
	if _, err := sess.WaitForExit(ctx); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}

	text := sess.Screen().Text()
	lines := strings.Split(text, "\n")
	if !strings.HasPrefix(lines[0], "HELLO") {
		t.Fatalf("row 0 = %q, want prefix HELLO", lines[0])
	}
	for _, r := range lines[0][len("HELLO"):] {
		if r != ' ' {
			t.Fatalf("row 0 tail not all spaces: %q", lines[0])
		}
	}

	st := sess.Status()
	if !st.Exited || st.ExitCode != 0 {
		t.Fatalf("status = %+v, want exited/0", st)
	}
}

func TestTypeAndPress(t *testing.T) {
	sess := startSession(t, "/bin/cat", nil)

	if err := sess.Type("hello"); err != nil {
		t.Fatalf("Type: %v", err)
	}
	if err := sess.Press("Enter"); err != nil {
		t.Fatalf("Press: %v", err)
	}

	ctx, cancel := withDeadline(1000)
	defer cancel()
	if _, err := sess.WaitForText(ctx, "hello"); err != nil {
		t.Fatalf("WaitForText: %v", err)
	}
}

func TestPressUnknownKeyIsInvalidParams(t *testing.T) {
	sess := startSession(t, "/bin/cat", nil)

	err := sess.Press("NotAKey")
	if err == nil {
		t.Fatal("expected error for bad key name")
	}
	var serr *Error
	if !errorsAs(err, &serr) || serr.Kind != KindInvalidParams {
		t.Fatalf("err = %v, want KindInvalidParams", err)
	}
}

func TestResize(t *testing.T) {
	sess := startSession(t, "/bin/cat", nil)

	if err := sess.Resize(40, 120); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	rows, cols := sess.Screen().Size()
	if rows != 40 || cols != 120 {
		t.Fatalf("size = %dx%d, want 120x40", cols, rows)
	}
}

func TestWaitForTextTimeout(t *testing.T) {
	sess := startSession(t, "/bin/sh", []string{"-c", "sleep 5"})

	ctx, cancel := withDeadline(50)
	defer cancel()
	_, err := sess.WaitForText(ctx, "never appears")
	var serr *Error
	if !errorsAs(err, &serr) || serr.Kind != KindTimeout {
		t.Fatalf("err = %v, want KindTimeout", err)
	}
}

func TestWaitForPattern(t *testing.T) {
	sess := startSession(t, "/bin/sh", []string{"-c", "printf 'code: 42\\n'"})

	ctx, cancel := withDeadline(1000)
	defer cancel()
	res, err := sess.WaitForPattern(ctx, regexp.MustCompile(`code: \d+`))
	if err != nil {
		t.Fatalf("WaitForPattern: %v", err)
	}
	if res.Matched != "code: 42" {
		t.Fatalf("matched = %q, want %q", res.Matched, "code: 42")
	}
}

func TestWaitForIdle(t *testing.T) {
	sess := startSession(t, "/bin/sh", []string{"-c", "printf hi; sleep 5"})

	ctx, cancel := withDeadline(2000)
	defer cancel()
	start := time.Now()
	if _, err := sess.WaitForIdle(ctx, 100*time.Millisecond); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatal("WaitForIdle resolved before the idle duration elapsed")
	}
}

func TestStatusBeforeExit(t *testing.T) {
	sess := startSession(t, "/bin/sh", []string{"-c", "sleep 5"})
	st := sess.Status()
	if st.Exited {
		t.Fatal("expected not exited while child is still sleeping")
	}
}

func TestWriteAfterExitIsAlreadyExited(t *testing.T) {
	sess := startSession(t, "/bin/sh", []string{"-c", "exit 0"})

	ctx, cancel := withDeadline(1000)
	defer cancel()
	sess.WaitForExit(ctx)

	// Give the pump a moment to observe EOF and the state to settle.
	time.Sleep(50 * time.Millisecond)

	err := sess.Type("too late")
	var serr *Error
	if !errorsAs(err, &serr) || serr.Kind != KindAlreadyExited {
		t.Fatalf("err = %v, want KindAlreadyExited", err)
	}
}

func TestCloseCancelsWaiters(t *testing.T) {
	sess := startSession(t, "/bin/sh", []string{"-c", "sleep 5"})

	done := make(chan error, 1)
	go func() {
		ctx, cancel := withDeadline(5000)
		defer cancel()
		_, err := sess.WaitForText(ctx, "never appears")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := sess.Close("test"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		var serr *Error
		if !errorsAs(err, &serr) || serr.Kind != KindSessionClosed {
			t.Fatalf("waiter err = %v, want KindSessionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not unblock after Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sess := startSession(t, "/bin/sh", []string{"-c", "sleep 5"})
	if err := sess.Close("first"); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close("second"); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMouseClickInvalidButton(t *testing.T) {
	sess := startSession(t, "/bin/cat", nil)
	err := sess.MouseClick(0, 0, "nope")
	var serr *Error
	if !errorsAs(err, &serr) || serr.Kind != KindInvalidParams {
		t.Fatalf("err = %v, want KindInvalidParams", err)
	}
}

// errorsAs is a tiny local wrapper so tests read naturally without an
// extra "errors" import alongside every assertion.
func errorsAs(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
