package ptyhost

import (
	"os"
	"testing"
	"time"
)

func TestWriteSuccess(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := r.Read(buf); err != nil {
				return
			}
		}
	}()
	defer r.Close()

	h := &Host{Ptm: w}
	n, err := h.Write([]byte("hello"), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected n=5, got %d", n)
	}
}

func TestWriteTimeout(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	chunk := make([]byte, 4096)
	for {
		_ = w.SetWriteDeadline(time.Now().Add(50 * time.Millisecond))
		if _, err := w.Write(chunk); err != nil {
			break
		}
	}
	_ = w.SetWriteDeadline(time.Time{})

	h := &Host{Ptm: w}
	start := time.Now()
	_, err = h.Write([]byte("x"), 100*time.Millisecond)
	elapsed := time.Since(start)

	if err != ErrWriteTimeout {
		t.Fatalf("expected ErrWriteTimeout, got %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Fatalf("returned too fast (%v), timeout may not be working", elapsed)
	}
}

func TestWriteError(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	h := &Host{Ptm: w}
	_, err = h.Write([]byte("hello"), time.Second)
	w.Close()

	if err == nil {
		t.Fatal("expected an error from writing to broken pipe")
	}
	if err == ErrWriteTimeout {
		t.Fatal("expected a pipe error, not a timeout")
	}
}

func TestSpawnEchoesAndExits(t *testing.T) {
	h, err := Spawn("/bin/sh", []string{"-c", "echo hi; exit 3"}, 24, 80, EnvPolicy{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Ptm.Close()

	buf := make([]byte, 256)
	n, _ := h.Read(buf)
	if n == 0 {
		t.Fatal("expected child output")
	}

	code, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if h.LastOutput().IsZero() {
		t.Fatal("expected LastOutput to be set after Read")
	}
}

func TestSpawnSetsDefaultEnv(t *testing.T) {
	h, err := Spawn("/bin/sh", []string{"-c", "echo $TERM"}, 24, 80, EnvPolicy{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Ptm.Close()

	buf := make([]byte, 256)
	n, _ := h.Read(buf)
	out := string(buf[:n])
	if want := "xterm-256color"; !contains(out, want) {
		t.Fatalf("child output %q does not contain %q", out, want)
	}
	h.Wait()
}

func TestSpawnHonorsTermOverride(t *testing.T) {
	h, err := Spawn("/bin/sh", []string{"-c", "echo $TERM"}, 24, 80, EnvPolicy{Term: "screen-256color"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Ptm.Close()

	buf := make([]byte, 256)
	n, _ := h.Read(buf)
	out := string(buf[:n])
	if want := "screen-256color"; !contains(out, want) {
		t.Fatalf("child output %q does not contain %q", out, want)
	}
	h.Wait()
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestKillSendsSigtermThenExits(t *testing.T) {
	h, err := Spawn("/bin/sh", []string{"-c", "trap 'exit 0' TERM; sleep 30"}, 24, 80, EnvPolicy{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Ptm.Close()

	if err := h.Kill(2 * time.Second); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("child did not exit after Kill")
	}
}
