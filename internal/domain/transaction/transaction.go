package transaction

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// seqCounter numbers statements in execution order within the process
var seqCounter uint64

// ChangeType represents the type of modification
type ChangeType string

const (
	ChangeTypeInsert ChangeType = "INSERT"
	ChangeTypeUpdate ChangeType = "UPDATE"
	ChangeTypeDelete ChangeType = "DELETE"
)

// Change represents a single row modification made by a statement
type Change struct {
	Type  ChangeType
	Table string
	Key   string
}

// Transaction is the context of a single SQL statement. There is no
// multi-statement atomicity; it only carries identity, timing and the
// list of rows the statement touched.
type Transaction struct {
	ID        string    // UUID used for tracing and logs
	Seq       uint64    // process-local sequence number
	Datastore string    // datastore the statement runs against
	Active    bool      // Whether the statement is still running
	StartTime time.Time // When the statement began

	mu      sync.Mutex
	changes []Change
}

// NewTransaction creates a new statement context with a unique ID
func NewTransaction(ds string) *Transaction {
	return &Transaction{
		ID:        uuid.New().String(),
		Seq:       atomic.AddUint64(&seqCounter, 1),
		Datastore: ds,
		Active:    true,
		StartTime: time.Now(),
	}
}

// Record appends a change. Safe for concurrent use by parallel workers.
func (tx *Transaction) Record(c Change) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	tx.changes = append(tx.changes, c)
	tx.mu.Unlock()
}

// Changes returns a copy of the recorded changes
func (tx *Transaction) Changes() []Change {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make([]Change, len(tx.changes))
	copy(out, tx.changes)
	return out
}

// Elapsed returns the time since the statement began
func (tx *Transaction) Elapsed() time.Duration {
	return time.Since(tx.StartTime)
}

// Close marks the statement as finished
func (tx *Transaction) Close() {
	tx.Active = false
}
