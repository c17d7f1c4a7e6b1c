package queue

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

type ackEntry struct {
	msg  kafka.Message
	done bool
}

// ackTracker gates consumer-group commits when claims finish out of order.
// Committing a message acks every earlier offset in its partition, so a claim
// finishing ahead of an earlier in-flight one must not commit yet. The tracker
// records claims per partition in fetch order and releases only the highest
// contiguous finished offset.
type ackTracker struct {
	mu    sync.Mutex
	parts map[partitionKey][]ackEntry
}

func newAckTracker() *ackTracker {
	return &ackTracker{parts: make(map[partitionKey][]ackEntry)}
}

// claim registers a fetched message. The reader hands out each partition's
// messages in offset order, so entries stay sorted.
func (t *ackTracker) claim(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := partitionKey{m.Topic, m.Partition}
	t.parts[key] = append(t.parts[key], ackEntry{msg: m})
}

// done marks a claimed message finished. It returns the message to commit and
// true when a prefix of the partition's claims is now finished; committing that
// message acks exactly the finished prefix and nothing in flight.
func (t *ackTracker) done(m kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := partitionKey{m.Topic, m.Partition}
	entries := t.parts[key]
	for i := range entries {
		if entries[i].msg.Offset == m.Offset {
			entries[i].done = true
			break
		}
	}

	var last kafka.Message
	n := 0
	for n < len(entries) && entries[n].done {
		last = entries[n].msg
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	if n == len(entries) {
		delete(t.parts, key)
	} else {
		t.parts[key] = entries[n:]
	}
	return last, true
}
