package stm

// Atomically runs body as a default read-write, retrying transaction
// on tx.
func (w *World) Atomically(tx *Tx, body func(*Tx)) {
	Atomically(w, tx, Attr{}, body)
}

// AtomicallyReadOnly runs body as a read-only transaction: it never
// acquires locks and aborts with ReasonROWrite if it attempts a store.
func (w *World) AtomicallyReadOnly(tx *Tx, body func(*Tx)) {
	Atomically(w, tx, Attr{ReadOnly: true}, body)
}

// AtomicallyNoRetry runs body once; on any abort (including a
// transient validation conflict) control returns to the caller
// instead of retrying.
func (w *World) AtomicallyNoRetry(tx *Tx, body func(*Tx)) {
	Atomically(w, tx, Attr{NoRetry: true}, body)
}
