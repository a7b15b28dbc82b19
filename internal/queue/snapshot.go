package queue

// Snapshot returns every item and the current cursor/id-counter state,
// for a repository to persist. Items are clones, safe to retain.
func (q *Queue) Snapshot() (items []*Item, cursorID *int64, nextID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items = make([]*Item, 0, len(q.items))
	for _, it := range q.items {
		items = append(items, cloneItem(it))
	}
	if q.cursor != nil {
		id := *q.cursor
		cursorID = &id
	}
	return items, cursorID, q.nextID
}

// LoadSnapshot rebuilds a Queue directly from persisted state, bypassing
// Insert's fair-position walk — used once at process start to rehydrate
// the ring a repository loaded from storage.
func LoadSnapshot(name string, items []*Item, cursorID *int64, nextID int64) *Queue {
	q := New(name)
	for _, it := range items {
		q.items[it.ID] = cloneItem(it)
		q.byPatchID[it.PatchID] = it.ID
	}
	if cursorID != nil {
		id := *cursorID
		q.cursor = &id
	}
	q.nextID = nextID
	return q
}
