package protocol

import (
	"fmt"
	"sync"
	"time"
)

// TransactionID correlates a response with the request that produced it on
// the same connection. Time is seconds elapsed since the connection-local
// generator was created; Seq wraps at 2^32. The pair is unique within one
// connection's lifetime up to 2^32 outstanding requests.
type TransactionID struct {
	Time uint32 `json:"time" msgpack:"time"`
	Seq  uint32 `json:"seq" msgpack:"seq"`
}

func (t TransactionID) String() string {
	return fmt.Sprintf("%d.%d", t.Time, t.Seq)
}

// TransactionIDGenerator issues per-connection transaction ids. Safe for
// concurrent use; each connection owns exactly one generator.
type TransactionIDGenerator struct {
	mu        sync.Mutex
	startTime uint64
	seq       uint32
}

// NewTransactionIDGenerator captures the current epoch second as the
// connection start time.
func NewTransactionIDGenerator() *TransactionIDGenerator {
	return &TransactionIDGenerator{startTime: uint64(time.Now().Unix())}
}

// Next returns the next transaction id. Seq increments monotonically and
// wraps at 2^32.
func (g *TransactionIDGenerator) Next() TransactionID {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := TransactionID{
		Time: uint32(uint64(time.Now().Unix()) - g.startTime),
		Seq:  g.seq,
	}
	g.seq++ // wraps naturally
	return id
}

// Seq returns the next sequence number to be issued.
func (g *TransactionIDGenerator) Seq() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}
