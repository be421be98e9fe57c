// Package store implements per-container persistence: a line-oriented
// key=value record per container under a configured root, with the state
// key written last so a partially written record is never restored as
// Running, plus the oldest-parent-first restore ordering from spec.md
// §4.6.
package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/perr"
)

// Reserved keys, per spec.md §6's "Persistent record layout".
const (
	KeyID    = "_id"
	KeyName  = "_name"
	KeyState = "state"
)

// Record is one container's persisted key=value set.
type Record map[string]string

// Store owns a directory of per-container record files, one named by
// container id under Root.
type Store struct {
	Root string
}

func New(root string) *Store { return &Store{Root: root} }

func (s *Store) path(id int) string {
	return filepath.Join(s.Root, strconv.Itoa(id))
}

func (s *Store) lockPath(id int) string {
	return s.path(id) + ".lock"
}

// Save writes rec to disk atomically (write to a temp file, fsync,
// rename), with the state key written last among the lines so a crash
// mid-write can never be restored with a stale-but-plausible state value
// preceding a truncated tail. gofrs/flock guards against a concurrent
// restore-time read racing an in-progress save of the same record.
func (s *Store) Save(id int, rec Record) error {
	lock := flock.New(s.lockPath(id))
	if err := lock.Lock(); err != nil {
		return perr.Wrap(perr.Unknown, err, "lock record %d", id)
	}
	defer lock.Unlock()

	if err := os.MkdirAll(s.Root, 0700); err != nil {
		return classifyMkdirErr(err, "mkdir store root %s", s.Root)
	}

	tmp, err := os.CreateTemp(s.Root, fmt.Sprintf(".%d.tmp-*", id))
	if err != nil {
		return perr.Wrap(perr.Unknown, err, "create temp record for %d", id)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	state, hasState := rec[KeyState]
	for k, v := range rec {
		if k == KeyState {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, escape(v)); err != nil {
			tmp.Close()
			return perr.Wrap(perr.Unknown, err, "write record %d", id)
		}
	}
	if hasState {
		if _, err := fmt.Fprintf(w, "%s=%s\n", KeyState, escape(state)); err != nil {
			tmp.Close()
			return perr.Wrap(perr.Unknown, err, "write record %d state", id)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return perr.Wrap(perr.Unknown, err, "flush record %d", id)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return perr.Wrap(perr.Unknown, err, "fsync record %d", id)
	}
	if err := tmp.Close(); err != nil {
		return perr.Wrap(perr.Unknown, err, "close record %d", id)
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		return perr.Wrap(perr.Unknown, err, "rename record %d", id)
	}
	return nil
}

// Load reads one container's record. Unrecognized keys are preserved
// verbatim in the returned Record, per spec.md §6 ("keys not recognized at
// restore are logged and preserved").
func (s *Store) Load(id int) (Record, error) {
	lock := flock.New(s.lockPath(id))
	if err := lock.RLock(); err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "rlock record %d", id)
	}
	defer lock.Unlock()

	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.New(perr.ContainerDoesNotExist, "no record for id %d", id)
		}
		return nil, perr.Wrap(perr.Unknown, err, "open record %d", id)
	}
	defer f.Close()

	rec := Record{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		rec[k] = unescape(v)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "scan record %d", id)
	}
	return rec, nil
}

// Remove deletes a container's record and lock file, called once the
// container has reached Destroyed.
func (s *Store) Remove(id int) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return perr.Wrap(perr.Unknown, err, "remove record %d", id)
	}
	os.Remove(s.lockPath(id))
	return nil
}

// IDs lists every container id with a record on disk.
func (s *Store) IDs() ([]int, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.Wrap(perr.Unknown, err, "read store root %s", s.Root)
	}
	var ids []int
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), ".") {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// classifyMkdirErr distinguishes NoSpace (ENOSPC) from a generic Unknown
// with the errno carried along, mirroring pkg/fsutil's classifyMountErr.
func classifyMkdirErr(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if os.IsPermission(err) {
		return perr.Wrap(perr.Permission, err, msg)
	}
	if pe, ok := err.(*os.PathError); ok {
		if e, ok := pe.Err.(unix.Errno); ok {
			if e == unix.ENOSPC {
				return perr.Wrap(perr.NoSpace, err, msg).WithErrno(int(e))
			}
			return perr.Wrap(perr.Unknown, err, msg).WithErrno(int(e))
		}
	}
	return perr.Wrap(perr.Unknown, err, msg)
}

// escape/unescape protect '=' and '\n' inside values, per spec.md §6's
// "escape-encoded" values requirement.
func escape(v string) string {
	r := strings.NewReplacer("\\", "\\\\", "\n", "\\n", "=", "\\=")
	return r.Replace(v)
}

func unescape(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			switch v[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\', '=':
				b.WriteByte(v[i+1])
				i++
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}
