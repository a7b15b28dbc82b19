// Package queue implements the ring queue described in the pipeline
// core: a singleton, doubly linked, circular list of patch-set
// references handed out in round-robin order. The ring algorithm
// (fair-position insertion, cursor-aware removal, ignored-item skipping)
// is a direct transliteration of the original Django model's
// CfbotQueue.insert_item / remove_item / get_and_move.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/cfbotcore/pipeline/internal/errs"
	"github.com/cfbotcore/pipeline/internal/log"
)

// Item is one ring entry: a patch-set reference plus its link fields.
// Prev/Next are nil at the physical head/tail respectively.
type Item struct {
	ID                 int64
	PatchID            string
	MessageID          string
	Prev               *int64
	Next               *int64
	ProcessedAt        *time.Time
	IgnoredAt          *time.Time
	LastBaseCommitSHA  string
}

func cloneItem(it *Item) *Item {
	if it == nil {
		return nil
	}
	cp := *it
	if it.Prev != nil {
		p := *it.Prev
		cp.Prev = &p
	}
	if it.Next != nil {
		n := *it.Next
		cp.Next = &n
	}
	if it.ProcessedAt != nil {
		t := *it.ProcessedAt
		cp.ProcessedAt = &t
	}
	if it.IgnoredAt != nil {
		t := *it.IgnoredAt
		cp.IgnoredAt = &t
	}
	return &cp
}

// Queue is the process-wide singleton ring. Construct it once via New
// and share the pointer; Retrieve mirrors the original's
// "Queue.retrieve()" singleton accessor for callers that only have
// access to a package-level handle.
type Queue struct {
	mu        sync.Mutex
	name      string
	items     map[int64]*Item
	byPatchID map[string]int64
	cursor    *int64
	nextID    int64

	now func() time.Time
}

var (
	singleton     *Queue
	singletonOnce sync.Once
)

// New constructs a fresh, empty Queue. Only ever called once per
// process — see Retrieve.
func New(name string) *Queue {
	return &Queue{
		name:      name,
		items:     make(map[int64]*Item),
		byPatchID: make(map[string]int64),
		now:       time.Now,
	}
}

// Retrieve returns the process-wide Queue singleton, creating it on
// first use. Mirrors the original's CfbotQueue.retrieve(): the schema
// enforces at most one Queue row, and application code never
// constructs a second one.
func Retrieve() *Queue {
	singletonOnce.Do(func() {
		singleton = New("default")
	})
	return singleton
}

func (q *Queue) item(id int64) *Item { return q.items[id] }

func (q *Queue) firstLocked() *Item {
	for _, it := range q.items {
		if it.Prev == nil {
			return it
		}
	}
	return nil
}

// Insert adds patch-id/message-id to the ring, or is a no-op / replace
// Returns the resulting item (cloned, safe to retain).
func (q *Queue) Insert(patchID, messageID string) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existingID, ok := q.byPatchID[patchID]; ok {
		existing := q.items[existingID]
		if existing.MessageID == messageID {
			log.Debug(log.CatQueue, "insert no-op, message unchanged", "patch_id", patchID)
			return cloneItem(existing), nil
		}
		log.Info(log.CatQueue, "patch-set replacement", "patch_id", patchID, "old_message_id", existing.MessageID, "new_message_id", messageID)
		q.removeLocked(existingID)
	}

	q.nextID++
	newItem := &Item{ID: q.nextID, PatchID: patchID, MessageID: messageID}

	if q.cursor == nil {
		// Empty queue: the new item is its own head and tail.
		q.items[newItem.ID] = newItem
		q.byPatchID[patchID] = newItem.ID
		cur := newItem.ID
		q.cursor = &cur
		log.Debug(log.CatQueue, "insert into empty queue", "patch_id", patchID, "item_id", newItem.ID)
		return cloneItem(newItem), nil
	}

	target := q.fairPositionTargetLocked()
	q.insertAfterLocked(newItem, target)
	q.items[newItem.ID] = newItem
	q.byPatchID[patchID] = newItem.ID

	log.Debug(log.CatQueue, "insert at fair position", "patch_id", patchID, "item_id", newItem.ID, "after", target.ID)
	return cloneItem(newItem), nil
}

// fairPositionTargetLocked implements the insert_item walk: starting
// from the first item, follow next pointers (wrapping once via the
// first item) until either a processed item past the cursor is found,
// or the walk returns to the cursor itself having already passed it.
// The returned item is the one the new entry should be inserted after.
func (q *Queue) fairPositionTargetLocked() *Item {
	first := q.firstLocked()
	var current *Item // set once the walk reaches the cursor item
	var previous *Item
	loopItem := first

	for {
		if loopItem.Next == nil && loopItem.Prev == nil {
			// Singleton ring: only one item exists.
			return loopItem
		}
		if current != nil && loopItem.ID == *q.cursor {
			return previous
		}
		if current != nil && loopItem.ProcessedAt != nil {
			return previous
		}
		if loopItem.ID == *q.cursor {
			current = loopItem
		}
		previous = loopItem
		if loopItem.Next == nil {
			loopItem = first
		} else {
			loopItem = q.items[*loopItem.Next]
		}
	}
}

// insertAfterLocked splices newItem into the ring immediately after
// target, rewriting the neighbors' link fields. Matches the contract
// implementations without a deferred
// uniqueness constraint may write the null tail link directly.
func (q *Queue) insertAfterLocked(newItem *Item, target *Item) {
	prevID := target.ID
	newItem.Prev = &prevID

	if target.Next != nil {
		nextID := *target.Next
		newItem.Next = &nextID
		next := q.items[nextID]
		pid := newItem.ID
		next.Prev = &pid
	} else {
		newItem.Next = nil
	}

	nid := newItem.ID
	target.Next = &nid
}

// Remove unlinks item-id from the ring, advancing the cursor per
// if it pointed at the removed item.
func (q *Queue) Remove(itemID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(itemID)
}

func (q *Queue) removeLocked(itemID int64) error {
	item, ok := q.items[itemID]
	if !ok {
		return fmt.Errorf("%w: queue item %d", errs.NotFoundError, itemID)
	}

	var prev, next *Item
	if item.Prev != nil {
		prev = q.items[*item.Prev]
	}
	if item.Next != nil {
		next = q.items[*item.Next]
	}

	if prev != nil {
		if next != nil {
			nid := next.ID
			prev.Next = &nid
		} else {
			prev.Next = nil
		}
	}
	if next != nil {
		if prev != nil {
			pid := prev.ID
			next.Prev = &pid
		} else {
			next.Prev = nil
		}
	}

	if q.cursor != nil && *q.cursor == itemID {
		switch {
		case next != nil:
			nid := next.ID
			q.cursor = &nid
		case prev == nil && next == nil:
			q.cursor = nil
		default:
			if first := q.firstAfterRemovalLocked(itemID); first != nil {
				fid := first.ID
				q.cursor = &fid
			} else {
				q.cursor = nil
			}
		}
	}

	delete(q.items, itemID)
	delete(q.byPatchID, item.PatchID)
	log.Debug(log.CatQueue, "removed item", "item_id", itemID, "patch_id", item.PatchID)
	return nil
}

// firstAfterRemovalLocked finds the head of the ring excluding the
// item currently being unlinked (it may still be present in q.items
// at call time in neither-prev-nor-next form, but that can only occur
// for the sole-element case, which is handled separately).
func (q *Queue) firstAfterRemovalLocked(excludeID int64) *Item {
	for id, it := range q.items {
		if id == excludeID {
			continue
		}
		if it.Prev == nil {
			return it
		}
	}
	return nil
}

// GetAndAdvance advances the cursor and marks the current item
// processed, skipping any item whose ignored-at is set. Returns the
// dequeued item and the item the cursor now points at (nil, nil if the
// queue is empty or every remaining item is ignored).
func (q *Queue) GetAndAdvance() (returned *Item, newCurrent *Item, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getAndAdvanceLocked()
}

func (q *Queue) getAndAdvanceLocked() (*Item, *Item, error) {
	// At most one full lap: if every item is ignored the cursor is back
	// where it started and nothing is returned.
	for i := 0; i < len(q.items); i++ {
		if q.cursor == nil {
			return nil, nil, nil
		}

		cur := q.items[*q.cursor]
		if cur.Next != nil {
			nid := *cur.Next
			q.cursor = &nid
		} else if first := q.firstLocked(); first != nil {
			fid := first.ID
			q.cursor = &fid
		} else {
			q.cursor = nil
		}

		now := q.now()
		cur.ProcessedAt = &now

		if cur.IgnoredAt != nil {
			log.Debug(log.CatQueue, "skipping ignored item", "item_id", cur.ID, "patch_id", cur.PatchID)
			continue
		}

		var newCur *Item
		if q.cursor != nil {
			newCur = q.items[*q.cursor]
		}
		return cloneItem(cur), cloneItem(newCur), nil
	}
	return nil, nil, nil
}

// Peek returns the item at the cursor without mutation.
func (q *Queue) Peek() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor == nil {
		return nil
	}
	return cloneItem(q.items[*q.cursor])
}

// GetFirst returns the item with Prev == nil.
func (q *Queue) GetFirst() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cloneItem(q.firstLocked())
}

// All returns the full ring in order, starting from GetFirst and
// walking Next until nil. Grounded on the reference GET /get_queue
// endpoint's walk (§6), exposed here for the CLI's `queue` command.
func (q *Queue) All() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Item
	cur := q.firstLocked()
	for cur != nil {
		out = append(out, cloneItem(cur))
		if cur.Next == nil {
			break
		}
		cur = q.items[*cur.Next]
	}
	return out
}

// SetIgnored marks an item ignored (or clears ignored-at when ignored
// is false), used by the Notifier on compile/test failure.
func (q *Queue) SetIgnored(patchID string, ignored bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, ok := q.byPatchID[patchID]
	if !ok {
		return fmt.Errorf("%w: patch %s", errs.NotFoundError, patchID)
	}
	it := q.items[id]
	if ignored {
		now := q.now()
		it.IgnoredAt = &now
	} else {
		it.IgnoredAt = nil
	}
	return nil
}

// SetLastBaseCommitSHA records the last successful base commit for the
// queue item belonging to patchID, used by the Notifier.
func (q *Queue) SetLastBaseCommitSHA(patchID, sha string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, ok := q.byPatchID[patchID]
	if !ok {
		return fmt.Errorf("%w: patch %s", errs.NotFoundError, patchID)
	}
	q.items[id].LastBaseCommitSHA = sha
	return nil
}

// ByPatchID looks up the current item for a patch-id, if any.
func (q *Queue) ByPatchID(patchID string) (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id, ok := q.byPatchID[patchID]
	if !ok {
		return nil, false
	}
	return cloneItem(q.items[id]), true
}

// Len returns the number of items currently in the ring.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
