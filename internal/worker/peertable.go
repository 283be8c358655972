package worker

import (
	"sync"

	"github.com/nullstate/kvshard/internal/ioqueue"
)

// peerTable holds a worker's bijective peer-id <-> queue-descriptor maps
// plus the queues themselves, guarded by one mutex. Kept as its own type
// so Base's zero-value story stays simple and the locking discipline is
// centralized in one place.
type peerTable struct {
	mu        sync.Mutex
	idToQd    map[int]ioqueue.Qd
	qdToID    map[ioqueue.Qd]int
	qdToQueue map[ioqueue.Qd]ioqueue.Queue
	order     []int
}

func newPeerTable() peerTable {
	return peerTable{
		idToQd:    make(map[int]ioqueue.Qd),
		qdToID:    make(map[ioqueue.Qd]int),
		qdToQueue: make(map[ioqueue.Qd]ioqueue.Queue),
	}
}

func (t *peerTable) register(peerID int, qd ioqueue.Qd, q ioqueue.Queue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.idToQd[peerID] = qd
	t.qdToID[qd] = peerID
	t.qdToQueue[qd] = q
	t.order = append(t.order, peerID)
}

func (t *peerTable) ids() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.order...)
}

func (t *peerTable) addQueue(qd ioqueue.Qd, q ioqueue.Queue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.qdToQueue[qd] = q
}

func (t *peerTable) qdFor(peerID int) (ioqueue.Qd, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	qd, ok := t.idToQd[peerID]
	return qd, ok
}

func (t *peerTable) idFor(qd ioqueue.Qd) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.qdToID[qd]
	return id, ok
}

func (t *peerTable) queue(peerID int) (ioqueue.Queue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	qd, ok := t.idToQd[peerID]
	if !ok {
		return nil, false
	}
	q, ok := t.qdToQueue[qd]
	return q, ok
}

func (t *peerTable) queueByQd(qd ioqueue.Qd) (ioqueue.Queue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.qdToQueue[qd]
	return q, ok
}
