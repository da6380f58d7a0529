// Package knownhosts implements the trust-on-first-use host key store of
// spec.md §4.6 (C7): an append-only file of `hostname key_type base64_key`
// lines, matched by exact string equality on all three fields. There is no
// host-name hashing and no key-rotation policy, both deliberate inherited
// weaknesses spec.md §9 calls out rather than defects to fix.
//
// Grounded on the shape of other_examples' knownhosts.go wrapper around
// golang.org/x/crypto/ssh/knownhosts: a small file-backed lookup/append
// pair. That package's HostKeyCallback abstraction does not fit here since
// this client's host key type (sshtransport.HostKey) is not an
// ssh.PublicKey, so the lookup/insert logic is reimplemented directly
// against the line format spec.md names.
package knownhosts

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

// DefaultPath returns $HOME/.ssh/known_hosts, resolving the home directory
// portably (including under sudo/cross-platform invocations) via
// mitchellh/go-homedir rather than the os/user package the teacher's wider
// dependency set does not otherwise need.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

// Store is the known-hosts file at Path, opened fresh for every Check call
// per spec.md §5's "no file locking, reopened per connection" resource
// model.
type Store struct {
	Path string
	Log  *logrus.Entry
}

// New returns a Store for path, defaulting Log to an entry on logrus's
// standard logger; callers may replace it with their own entry.
func New(path string) *Store {
	return &Store{Path: path, Log: logrus.NewEntry(logrus.StandardLogger())}
}

// Check reports whether (hostname, keyType, base64Key) is already recorded.
// A missing file is treated as an empty store, not an error, since the
// first connection of a process's lifetime will always miss.
func (s *Store) Check(hostname, keyType, base64Key string) (bool, error) {
	f, err := os.Open(s.Path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var h, kt, b64 string
		n, _ := fmt.Sscanf(sc.Text(), "%s %s %s", &h, &kt, &b64)
		if n != 3 {
			continue
		}
		if h == hostname && kt == keyType && b64 == base64Key {
			return true, nil
		}
	}
	return false, sc.Err()
}

// Insert appends a new known-hosts line, creating $HOME/.ssh with mode
// 0700 and the file with mode 0600 if either is absent, and logs a warning
// to match spec.md §4.6's "emit a warning to standard error" requirement.
// Insert does not re-check presence; callers call Check first so the two
// steps together implement TOFU without a single atomic check-and-append
// (the known weakness spec.md §5 attributes to the absence of file
// locking).
func (s *Store) Insert(hostname, keyType, base64Key string) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s %s\n", hostname, keyType, base64Key)
	if _, err := f.WriteString(line); err != nil {
		return err
	}
	s.Log.Warnf("added new host key for %s to %s", hostname, s.Path)
	return nil
}

// Verify is the combined check-then-insert TOFU operation spec.md §4.6
// describes: an unrecognized host key is accepted and recorded; a
// recognized one is simply accepted. It never rejects a connection on
// mismatch detection beyond what exact-match TOFU naturally provides — a
// changed key is recorded as a second line rather than raising an error,
// matching the retained weakness in spec.md §9.
func (s *Store) Verify(hostname, keyType, base64Key string) error {
	known, err := s.Check(hostname, keyType, base64Key)
	if err != nil {
		s.Log.WithError(err).Warn("known_hosts read failed; proceeding with TOFU")
		known = false
	}
	if known {
		return nil
	}
	if err := s.Insert(hostname, keyType, base64Key); err != nil {
		s.Log.WithError(err).Warn("known_hosts write failed; continuing")
	}
	return nil
}
