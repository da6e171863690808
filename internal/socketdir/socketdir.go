// Package socketdir locates and names the per-session Unix domain socket
// a termwright daemon listens on, and recovers from sockets left behind
// by a daemon that died without closing cleanly.
package socketdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Suffix is appended to every session name to form its socket filename.
const Suffix = ".sock"

// lockSuffix names the advisory lock file a daemon holds for the
// lifetime of its socket; a lock file that can be acquired by someone
// else means the socket beside it is stale.
const lockSuffix = ".sock.lock"

// Entry is one parsed socket file in the socket directory.
type Entry struct {
	Name string // session name, e.g. a session UUID
	Path string // full path to the .sock file
}

// Format returns the socket filename for a session name: the name plus
// Suffix, e.g. "concierge" becomes "concierge.sock".
func Format(name string) string {
	return name + Suffix
}

// Parse extracts the session name from a socket filename. Returns false
// if filename doesn't end in Suffix or the name portion is empty.
func Parse(filename string) (Entry, bool) {
	if !strings.HasSuffix(filename, Suffix) {
		return Entry{}, false
	}
	name := strings.TrimSuffix(filename, Suffix)
	if name == "" {
		return Entry{}, false
	}
	return Entry{Name: name}, true
}

// Dir returns the directory termwright daemons place their sockets in:
// ~/.termwright/sockets. The directory is created if it doesn't exist.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".termwright", "sockets")
	os.MkdirAll(dir, 0o700)
	return dir
}

// Path returns the full socket path for a session name.
func Path(name string) string {
	return filepath.Join(Dir(), Format(name))
}

// LockPath returns the path of the advisory lock file a daemon holds
// alongside its socket for the lifetime of the session.
func LockPath(name string) string {
	return filepath.Join(Dir(), name+lockSuffix)
}

// AcquireLock creates the socket directory and takes an exclusive,
// non-blocking lock on name's lock file. The returned Flock must be
// unlocked (and its file removed) when the session closes. Returns an
// error if another process already holds it, meaning a session under
// that name is genuinely still running.
func AcquireLock(dir, name string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, name+lockSuffix))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("session %q already has a running daemon", name)
	}
	return fl, nil
}

// IsStale reports whether the lock file for name can be acquired by us,
// meaning no live daemon holds it and any .sock file beside it is a
// leftover from an unclean shutdown. The lock is released immediately;
// this is a point-in-time check, not a reservation.
func IsStale(dir, name string) bool {
	fl := flock.New(filepath.Join(dir, name+lockSuffix))
	ok, err := fl.TryLock()
	if err != nil {
		return false
	}
	if ok {
		fl.Unlock()
	}
	return ok
}

// RemoveStale deletes the .sock and .sock.lock files for every entry in
// dir whose lock is acquirable (see IsStale), returning the names
// removed. Entries whose lock is held by a live daemon are left alone.
func RemoveStale(dir string) ([]string, error) {
	entries, err := ListIn(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		if !IsStale(dir, e.Name) {
			continue
		}
		os.Remove(e.Path)
		os.Remove(filepath.Join(dir, e.Name+lockSuffix))
		removed = append(removed, e.Name)
	}
	return removed, nil
}

// Find returns name's socket path in the default socket directory if
// that file exists.
func Find(name string) (string, error) {
	return FindIn(Dir(), name)
}

// FindIn returns the path of name's socket in dir if that file exists.
func FindIn(dir, name string) (string, error) {
	path := filepath.Join(dir, Format(name))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no socket found for %q", name)
	}
	return path, nil
}

// List returns every parsed socket entry from the default directory.
func List() ([]Entry, error) {
	return ListIn(Dir())
}

// ListIn returns every parsed socket entry from dir.
func ListIn(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	for _, de := range dirEntries {
		entry, ok := Parse(de.Name())
		if !ok {
			continue
		}
		entry.Path = filepath.Join(dir, de.Name())
		entries = append(entries, entry)
	}
	return entries, nil
}

