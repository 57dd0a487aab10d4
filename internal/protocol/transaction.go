package protocol

import (
	"sync"
	"time"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
)

// Callback is invoked exactly once when a transaction completes, either
// with a decoded report or a terminal error (spec §4.2, §3: Transaction).
type Callback func(Report, *kiserr.Error)

// transaction is the bookkeeping record for one in-flight command (spec §3).
type transaction struct {
	txid      uint32
	seqno     uint32
	startedAt time.Time
	command   Command
	callback  Callback
	timer     *time.Timer
}

// transactionTable tracks in-flight commands for one engine instance.
// Transactions are unique within one source's engine (spec §3).
type transactionTable struct {
	mu       sync.Mutex
	nextSeq  uint32
	nextTxID uint32
	inFlight map[uint32]*transaction // keyed by seqno

	timeout func() time.Duration
}

func newTransactionTable(timeout func() time.Duration) *transactionTable {
	return &transactionTable{
		inFlight: make(map[uint32]*transaction),
		timeout:  timeout,
	}
}

// begin allocates a seqno/txid pair, arms the 30s timer, and registers cb as
// the completion callback.
func (t *transactionTable) begin(cmd Command, onTimeout func(seqno uint32), cb Callback) *transaction {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	seqno := t.nextSeq
	t.nextTxID++
	txid := t.nextTxID

	tx := &transaction{
		txid:      txid,
		seqno:     seqno,
		startedAt: time.Now(),
		command:   cmd,
		callback:  cb,
	}
	tx.timer = time.AfterFunc(t.timeout(), func() { onTimeout(seqno) })
	t.inFlight[seqno] = tx
	return tx
}

// complete looks up and removes the transaction for seqno, cancelling its
// timer, returning (tx, true) if found.
func (t *transactionTable) complete(seqno uint32) (*transaction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx, ok := t.inFlight[seqno]
	if !ok {
		return nil, false
	}
	delete(t.inFlight, seqno)
	tx.timer.Stop()
	return tx, true
}

// failAll completes every in-flight transaction with kind, e.g. on
// transport error or explicit cancellation (spec §4.2 step 5, §4.4 close).
func (t *transactionTable) failAll(kind kiserr.Kind, msg string) []*transaction {
	t.mu.Lock()
	txs := make([]*transaction, 0, len(t.inFlight))
	for seqno, tx := range t.inFlight {
		tx.timer.Stop()
		txs = append(txs, tx)
		delete(t.inFlight, seqno)
	}
	t.mu.Unlock()
	return txs
}

func (t *transactionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight)
}
