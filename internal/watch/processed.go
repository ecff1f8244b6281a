package watch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ProcessedSet is the de-duplication ledger for dispatched segments. Entries
// are persisted to an append-only log so a filename is recorded exactly once,
// before dispatch. It is mutated only by the single watcher goroutine, so no
// locking is needed.
type ProcessedSet struct {
	seen map[string]struct{}
	file *os.File
}

// OpenProcessedSet opens (or creates) the append-only log at path and loads
// any entries already present.
func OpenProcessedSet(path string) (*ProcessedSet, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open processed log: %w", err)
	}

	seen := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("read processed log: %w", err)
	}

	return &ProcessedSet{seen: seen, file: f}, nil
}

// Mark records name as dispatched. It returns true if the name was new;
// false means the segment was already dispatched and must not be re-emitted.
func (s *ProcessedSet) Mark(name string) (bool, error) {
	if _, ok := s.seen[name]; ok {
		return false, nil
	}
	if _, err := fmt.Fprintln(s.file, name); err != nil {
		return false, fmt.Errorf("append processed log: %w", err)
	}
	s.seen[name] = struct{}{}
	return true, nil
}

// Contains reports whether name has been dispatched.
func (s *ProcessedSet) Contains(name string) bool {
	_, ok := s.seen[name]
	return ok
}

// Len returns the number of dispatched segments.
func (s *ProcessedSet) Len() int { return len(s.seen) }

// Close closes the underlying log file.
func (s *ProcessedSet) Close() error { return s.file.Close() }
