// Package apps tracks which processes should get a vibrance boost when
// they hold focus full-screen.
package apps

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
)

// DefaultTarget is the target percentage given to a newly tracked process
// when none is supplied.
const DefaultTarget = 100

// Entry is one tracked process.
type Entry struct {
	PID    string `json:"pid"`
	Target int    `json:"target"`
}

// Result describes what a toggle did.
type Result int

const (
	Ignored Result = iota
	Added
	Removed
)

func (r Result) String() string {
	switch r {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "ignored"
	}
}

// Table maps process ids to target vibrance percentages. It is safe for
// concurrent use.
type Table struct {
	mu            sync.RWMutex
	entries       map[string]Entry
	defaultTarget int
}

// NewTable creates an empty table. Entries added without an explicit target
// get defaultTarget, clamped to 0-100.
func NewTable(defaultTarget int) *Table {
	return &Table{
		entries:       make(map[string]Entry),
		defaultTarget: clampPercent(defaultTarget),
	}
}

// ValidPID reports whether pid is a non-empty string of ASCII digits.
func ValidPID(pid string) bool {
	if pid == "" {
		return false
	}
	for _, c := range pid {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// NormalizePID trims surrounding whitespace and leading zeros so
// " 01234\n" and "1234" name the same process, the one whose window
// reports pid 1234.
func NormalizePID(pid string) string {
	pid = strings.TrimSpace(pid)
	if trimmed := strings.TrimLeft(pid, "0"); trimmed != "" {
		return trimmed
	}
	if pid != "" {
		return "0"
	}
	return pid
}

// Toggle removes pid if it is tracked and adds it with the default target
// otherwise.
func (t *Table) Toggle(pid string) Result {
	return t.toggle(pid, t.defaultTarget)
}

// ToggleTarget is Toggle with an explicit target percentage for the insert
// case. The target is ignored when pid is removed.
func (t *Table) ToggleTarget(pid string, target int) Result {
	return t.toggle(pid, clampPercent(target))
}

func (t *Table) toggle(pid string, target int) Result {
	log := logger.WithComponent("apps")

	pid = NormalizePID(pid)
	if !ValidPID(pid) {
		log.Debug().Str("pid", pid).Msg("Ignoring invalid process id")
		return Ignored
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[pid]; ok {
		delete(t.entries, pid)
		log.Info().Str("pid", pid).Msg("Process no longer tracked")
		return Removed
	}

	t.entries[pid] = Entry{PID: pid, Target: target}
	log.Info().Str("pid", pid).Int("target", target).Msg("Process tracked")
	return Added
}

// Lookup returns the entry for pid. ok is false when pid is not tracked.
func (t *Table) Lookup(pid string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[NormalizePID(pid)]
	return e, ok
}

// LookupPID is Lookup for a numeric process id.
func (t *Table) LookupPID(pid uint32) (Entry, bool) {
	return t.Lookup(strconv.FormatUint(uint64(pid), 10))
}

// Clear drops every entry.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.entries)
}

// Count returns the number of tracked processes.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns a snapshot of all entries ordered by numeric pid.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].PID) != len(out[j].PID) {
			return len(out[i].PID) < len(out[j].PID)
		}
		return out[i].PID < out[j].PID
	})
	return out
}

// DefaultTarget returns the target used by Toggle.
func (t *Table) DefaultTarget() int {
	return t.defaultTarget
}

func clampPercent(p int) int {
	return max(0, min(p, 100))
}
