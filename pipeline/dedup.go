package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/cheerily/cheerily/db"
)

// Deduplicator keeps the in-memory buffer of unseen cheers and the cursor into
// it. The seen-set itself is durable and lives in the CheerRepository.
type Deduplicator struct {
	store db.CheerRepository

	mu        sync.Mutex
	buffer    []db.Cheer
	nextIndex int
}

func NewDeduplicator(store db.CheerRepository) *Deduplicator {
	return &Deduplicator{store: store}
}

// Filter drops cheers that were already seen, are already buffered, repeat
// within the batch, or have no URL. Order is preserved.
func (d *Deduplicator) Filter(ctx context.Context, batch []db.Cheer) ([]db.Cheer, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	urls := make([]string, 0, len(batch))
	for _, c := range batch {
		urls = append(urls, c.URL)
	}
	seen, err := d.store.SeenKeys(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to query seen cheers: %w", err)
	}

	d.mu.Lock()
	skip := make(map[string]bool, len(d.buffer)-d.nextIndex+len(batch))
	for _, c := range d.buffer[d.nextIndex:] {
		skip[c.URL] = true
	}
	d.mu.Unlock()

	fresh := make([]db.Cheer, 0, len(batch))
	for _, c := range batch {
		if c.URL == "" || seen[c.URL] || skip[c.URL] {
			continue
		}
		skip[c.URL] = true
		c.Seen = false
		c.SeenAt = nil
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// Replace swaps in a new buffer and rewinds the cursor.
func (d *Deduplicator) Replace(batch []db.Cheer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffer = append([]db.Cheer(nil), batch...)
	d.nextIndex = 0
}

// Append drops the served prefix and adds batch after the unserved items,
// skipping anything already buffered.
func (d *Deduplicator) Append(batch []db.Cheer) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.buffer[d.nextIndex:]
	merged := make([]db.Cheer, 0, len(pending)+len(batch))
	merged = append(merged, pending...)

	have := make(map[string]bool, len(merged))
	for _, c := range merged {
		have[c.URL] = true
	}
	added := 0
	for _, c := range batch {
		if have[c.URL] {
			continue
		}
		have[c.URL] = true
		merged = append(merged, c)
		added++
	}
	d.buffer = merged
	d.nextIndex = 0
	return added
}

// Next returns the cheer at the cursor. It is marked seen in the store before
// the cursor moves, so a failed write hands out nothing. ok is false when the
// buffer is drained.
func (d *Deduplicator) Next(ctx context.Context) (cheer db.Cheer, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.nextIndex >= len(d.buffer) {
		return db.Cheer{}, false, nil
	}
	cheer = d.buffer[d.nextIndex]
	if err := d.store.MarkSeen(ctx, cheer); err != nil {
		return db.Cheer{}, false, fmt.Errorf("failed to mark cheer as seen: %w", err)
	}
	d.nextIndex++
	cheer.Seen = true
	return cheer, true, nil
}

// Remaining is the number of buffered cheers not yet handed out.
func (d *Deduplicator) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffer) - d.nextIndex
}

// Cursor is the index of the next cheer in the current buffer.
func (d *Deduplicator) Cursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextIndex
}
