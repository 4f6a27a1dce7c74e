// Package audit implements an append-only audit log with daily Merkle
// roots. Every public API request is recorded; the per-day root lets an
// operator prove after the fact that the log was not rewritten.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable audit event.
type Entry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Query     string    `json:"query"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Log stores immutable audit events grouped by UTC day.
type Log struct {
	mu   sync.Mutex
	days map[string][][]byte // "2006-01-02" -> canonical JSON leaves
	now  func() time.Time
}

// NewLog constructs an empty audit log.
func NewLog() *Log {
	return &Log{
		days: make(map[string][][]byte),
		now:  time.Now,
	}
}

// Append records an event. The entry id and timestamp are assigned here so
// callers cannot backdate records.
func (l *Log) Append(action, query, entityType string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:        uuid.NewString(),
		Action:    action,
		Query:     query,
		Type:      entityType,
		Timestamp: l.now().UTC(),
	}
	raw, _ := json.Marshal(e)
	day := e.Timestamp.Format("2006-01-02")
	l.days[day] = append(l.days[day], raw)
	return e
}

// Root returns the hex Merkle root over the events recorded on the given
// UTC day (formatted "2006-01-02"), or the empty string when the day has
// no events. An odd leaf at any level is promoted by hashing it with itself.
func (l *Log) Root(day string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.days[day]
	if len(events) == 0 {
		return ""
	}

	level := make([][]byte, len(events))
	for i, raw := range events {
		sum := sha256.Sum256(raw)
		level[i] = sum[:]
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			sum := sha256.Sum256(append(append([]byte{}, level[i]...), right...))
			next = append(next, sum[:])
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}

// Len returns the number of events recorded on the given day.
func (l *Log) Len(day string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.days[day])
}
