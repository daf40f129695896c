package irrigation

import "sync"

const DefaultBufferCapacity = 50

// RecordBuffer keeps the most recent sensor records, oldest first. When full,
// pushing a record evicts the oldest one.
type RecordBuffer struct {
	mu      sync.RWMutex
	records []SensorRecord
	start   int
	size    int
}

func NewRecordBuffer(capacity int) *RecordBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &RecordBuffer{records: make([]SensorRecord, capacity)}
}

// Push appends rec and reports whether an older record was evicted.
func (b *RecordBuffer) Push(rec SensorRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.records)
	if b.size < capacity {
		b.records[(b.start+b.size)%capacity] = rec
		b.size++
		return false
	}
	b.records[b.start] = rec
	b.start = (b.start + 1) % capacity
	return true
}

// Load replaces the buffer contents with recs, which must be ordered oldest
// first. Only the newest Cap() records are kept.
func (b *RecordBuffer) Load(recs []SensorRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.records)
	if len(recs) > capacity {
		recs = recs[len(recs)-capacity:]
	}
	b.start = 0
	b.size = copy(b.records, recs)
}

// Records returns a copy of the buffered records, oldest first.
func (b *RecordBuffer) Records() []SensorRecord {
	return b.Last(b.Len())
}

// Last returns up to n of the newest records, oldest first.
func (b *RecordBuffer) Last(n int) []SensorRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return []SensorRecord{}
	}
	out := make([]SensorRecord, n)
	capacity := len(b.records)
	first := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.records[(b.start+first+i)%capacity]
	}
	return out
}

// Latest returns the newest record.
func (b *RecordBuffer) Latest() (SensorRecord, bool) {
	last := b.Last(1)
	if len(last) == 0 {
		return SensorRecord{}, false
	}
	return last[0], true
}

func (b *RecordBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *RecordBuffer) Cap() int {
	return len(b.records)
}
