package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store, used by stage-driver unit tests
// that substitute fakes for real git/meson/ninja.
type MemoryStore struct {
	mu         sync.Mutex
	nextTaskID int64
	nextCmdID  int64
	nextArtID  int64
	nextHistID int64

	tasks      map[int64]*Task
	commands   map[int64]*Command
	artifacts  map[int64]*Artifact
	history    []*BranchHistory

	now func() time.Time
}

// NewMemoryStore constructs an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[int64]*Task),
		commands:  make(map[int64]*Command),
		artifacts: make(map[int64]*Artifact),
		now:       time.Now,
	}
}

func (m *MemoryStore) CreateTask(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTaskID++
	t.ID = m.nextTaskID
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskCreated
	}
	now := m.now()
	t.Created, t.Modified = now, now
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Modified = m.now()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *MemoryStore) TasksForBranch(_ context.Context, branchID string) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.BranchID == branchID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryStore) FirstTaskByName(_ context.Context, branchID, taskName string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Task
	for _, t := range m.tasks {
		if t.BranchID == branchID && t.TaskName == taskName {
			if best == nil || t.ID < best.ID {
				best = t
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) ClearTasksForBranch(_ context.Context, branchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tasks {
		if t.BranchID == branchID {
			delete(m.tasks, id)
		}
	}
	for id, c := range m.commands {
		if _, ok := m.tasks[c.TaskID]; !ok {
			delete(m.commands, id)
		}
	}
	return nil
}

func (m *MemoryStore) CreateCommand(_ context.Context, c *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCmdID++
	c.ID = m.nextCmdID
	if c.Status == "" {
		c.Status = TaskCreated
	}
	cp := *c
	m.commands[c.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateCommand(_ context.Context, c *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.commands[c.ID] = &cp
	return nil
}

func (m *MemoryStore) CommandsForTask(_ context.Context, taskID int64, commandType string) ([]*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Command
	for _, c := range m.commands {
		if c.TaskID != taskID {
			continue
		}
		if commandType != "" && c.Type != commandType {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CreateArtifact(_ context.Context, a *Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextArtID++
	a.ID = m.nextArtID
	cp := *a
	m.artifacts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) AppendHistory(_ context.Context, h *BranchHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHistID++
	h.ID = m.nextHistID
	h.Modified = m.now()
	cp := *h
	m.history = append(m.history, &cp)
	return nil
}

func (m *MemoryStore) HistoryForBranch(_ context.Context, branchID string) ([]*BranchHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BranchHistory
	for _, h := range m.history {
		if h.BranchID == branchID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	return out, nil
}
