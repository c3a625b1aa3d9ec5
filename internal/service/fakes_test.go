package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/events"
	"github.com/aryan0dhankhar/taskdesk/internal/infrastructure/redis"
)

// memStore backs both fake repositories so cascades and joins behave like
// the database. A single mutex stands in for row locks.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*domain.User
	tasks    map[int64]*domain.Task
	nextUser int64
	nextTask int64

	// beforeTx, when set, runs once just before the next Create or Update
	// takes the lock, letting a test slip a concurrent write in
	beforeTx func()
}

func (m *memStore) begin() {
	if hook := m.beforeTx; hook != nil {
		m.beforeTx = nil
		hook()
	}
	m.mu.Lock()
}

// lookup reads users while mu is held
func (m *memStore) lookup(id int64) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*domain.User{}, tasks: map[int64]*domain.Task{}}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.AdminID != nil {
		id := *u.AdminID
		c.AdminID = &id
	}
	return &c
}

func (m *memStore) cloneTask(t *domain.Task) *domain.Task {
	c := *t
	if t.WorkedHours != nil {
		h := *t.WorkedHours
		c.WorkedHours = &h
	}
	c.AssigneeAdminID = nil
	if u, ok := m.users[t.AssignedTo]; ok && u.AdminID != nil {
		id := *u.AdminID
		c.AssigneeAdminID = &id
	}
	return &c
}

type memUserRepo struct{ *memStore }

type memTaskRepo struct{ *memStore }

func (r memUserRepo) Create(_ context.Context, u *domain.User, check func(*domain.User, domain.UserLookup) error) error {
	r.begin()
	defer r.mu.Unlock()
	if check != nil {
		if err := check(u, r.lookup); err != nil {
			return err
		}
	}
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username taken: %w", domain.ErrConflict)
		}
	}
	r.nextUser++
	u.ID = r.nextUser
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
}

func (r memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
}

func (r memUserRepo) List(_ context.Context, f domain.UserFilter) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.User{}
	for _, u := range r.users {
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		if f.AdminID != nil && !u.ManagedBy(*f.AdminID) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r memUserRepo) Update(_ context.Context, id int64, mutate func(*domain.User, domain.UserRefs, domain.UserLookup) error) (*domain.User, error) {
	r.begin()
	defer r.mu.Unlock()
	current, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	var refs domain.UserRefs
	for _, t := range r.tasks {
		if t.AssignedTo == id {
			refs.AssignedTasks++
		}
	}
	for _, u := range r.users {
		if u.ManagedBy(id) {
			refs.ManagedUsers++
		}
	}

	work := cloneUser(current)
	if err := mutate(work, refs, r.lookup); err != nil {
		return nil, err
	}
	for _, u := range r.users {
		if u.ID != id && u.Username == work.Username {
			return nil, fmt.Errorf("username taken: %w", domain.ErrConflict)
		}
	}
	work.UpdatedAt = time.Now()
	r.users[id] = work
	if work.Role != domain.RoleAdmin {
		for _, u := range r.users {
			if u.ManagedBy(id) {
				u.AdminID = nil
			}
		}
	}
	return cloneUser(work), nil
}

func (r memUserRepo) Delete(_ context.Context, id int64, check func(*domain.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	if err := check(cloneUser(u)); err != nil {
		return err
	}
	delete(r.users, id)
	for tid, t := range r.tasks {
		if t.AssignedTo == id {
			delete(r.tasks, tid)
		}
	}
	for _, other := range r.users {
		if other.ManagedBy(id) {
			other.AdminID = nil
		}
	}
	return nil
}

func (r memTaskRepo) Create(_ context.Context, t *domain.Task, check func(*domain.Task, domain.UserLookup) error) error {
	r.begin()
	defer r.mu.Unlock()
	if check != nil {
		if err := check(t, r.lookup); err != nil {
			return err
		}
	}
	if _, ok := r.users[t.AssignedTo]; !ok {
		return domain.FieldError("assigned_to", "references a record that does not exist")
	}
	r.nextTask++
	t.ID = r.nextTask
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.tasks[t.ID] = r.cloneTask(t)
	t.AssigneeAdminID = r.cloneTask(t).AssigneeAdminID
	return nil
}

func (r memTaskRepo) GetByID(_ context.Context, id int64) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		return r.cloneTask(t), nil
	}
	return nil, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
}

func (r memTaskRepo) List(_ context.Context, f domain.TaskFilter) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range r.tasks {
		c := r.cloneTask(t)
		if f.AssignedTo != nil && c.AssignedTo != *f.AssignedTo {
			continue
		}
		if f.AdminID != nil && (c.AssigneeAdminID == nil || *c.AssigneeAdminID != *f.AdminID) {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTaskRepo) Update(_ context.Context, id int64, mutate func(*domain.Task, domain.UserLookup) error) (*domain.Task, error) {
	r.begin()
	defer r.mu.Unlock()
	current, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	work := r.cloneTask(current)
	if err := mutate(work, r.lookup); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now()
	r.tasks[id] = work
	return r.cloneTask(work), nil
}

func (r memTaskRepo) Delete(_ context.Context, id int64, check func(*domain.Task) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	if err := check(r.cloneTask(t)); err != nil {
		return err
	}
	delete(r.tasks, id)
	return nil
}

func (r memTaskRepo) CountByStatus(context.Context) (map[domain.TaskStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.TaskStatus]int{}
	for _, t := range r.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (r memTaskRepo) CountOverdue(_ context.Context, asOf time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if t.Overdue(asOf) {
			n++
		}
	}
	return n, nil
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TaskEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.TaskEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// memKV is a map-backed stand-in for Redis
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	if b, ok := value.([]byte); ok {
		m.data[key] = string(b)
	}
	return nil
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (m *memKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
