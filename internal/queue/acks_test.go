package queue

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgAt(partition int, offset int64) kafka.Message {
	return kafka.Message{Topic: "jobs", Partition: partition, Offset: offset}
}

func TestAckTrackerHoldsCommitForEarlierInFlight(t *testing.T) {
	tr := newAckTracker()
	tr.claim(msgAt(0, 5))
	tr.claim(msgAt(0, 6))

	// Offset 6 finishes first; committing it would ack the still-running 5.
	_, ok := tr.done(msgAt(0, 6))
	assert.False(t, ok, "later offset must not commit past an in-flight earlier one")

	m, ok := tr.done(msgAt(0, 5))
	require.True(t, ok)
	assert.Equal(t, int64(6), m.Offset, "finishing the earlier claim releases the whole prefix")
}

func TestAckTrackerReleasesInOrderCompletions(t *testing.T) {
	tr := newAckTracker()
	tr.claim(msgAt(0, 1))
	tr.claim(msgAt(0, 2))
	tr.claim(msgAt(0, 3))

	m, ok := tr.done(msgAt(0, 1))
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Offset)

	m, ok = tr.done(msgAt(0, 2))
	require.True(t, ok)
	assert.Equal(t, int64(2), m.Offset)

	m, ok = tr.done(msgAt(0, 3))
	require.True(t, ok)
	assert.Equal(t, int64(3), m.Offset)
}

func TestAckTrackerPartitionsAreIndependent(t *testing.T) {
	tr := newAckTracker()
	tr.claim(msgAt(0, 10))
	tr.claim(msgAt(1, 20))

	m, ok := tr.done(msgAt(1, 20))
	require.True(t, ok)
	assert.Equal(t, 1, m.Partition)
	assert.Equal(t, int64(20), m.Offset)

	m, ok = tr.done(msgAt(0, 10))
	require.True(t, ok)
	assert.Equal(t, 0, m.Partition)
	assert.Equal(t, int64(10), m.Offset)
}

func TestAckTrackerResumesAfterPartialRelease(t *testing.T) {
	tr := newAckTracker()
	for off := int64(1); off <= 4; off++ {
		tr.claim(msgAt(0, off))
	}

	_, ok := tr.done(msgAt(0, 3))
	assert.False(t, ok)
	_, ok = tr.done(msgAt(0, 2))
	assert.False(t, ok)

	m, ok := tr.done(msgAt(0, 1))
	require.True(t, ok)
	assert.Equal(t, int64(3), m.Offset, "contiguous finished prefix commits as one")

	m, ok = tr.done(msgAt(0, 4))
	require.True(t, ok)
	assert.Equal(t, int64(4), m.Offset)
}
