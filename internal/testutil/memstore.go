// Package testutil holds in-memory stores and container helpers shared by
// package tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/repository"
)

// MemStore implements the user, role and task store contracts in memory.
// Setting Err makes every call fail with it.
type MemStore struct {
	mu     sync.Mutex
	users  map[int64]models.User
	roles  map[int64]models.Role
	tasks  map[int64]models.Task
	nextID int64
	clock  time.Time

	Err error
	// Calls counts store invocations by method name.
	Calls map[string]int
}

func NewMemStore() *MemStore {
	s := &MemStore{
		users: map[int64]models.User{},
		roles: map[int64]models.Role{},
		tasks: map[int64]models.Task{},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Calls: map[string]int{},
	}
	for _, name := range []string{models.RoleAdmin, models.RoleUser} {
		s.nextID++
		s.roles[s.nextID] = models.Role{ID: s.nextID, Name: name}
	}
	return s
}

func (s *MemStore) enter(method string) error {
	s.Calls[method]++
	return s.Err
}

func (s *MemStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// AddUser stores a user with the given role name and returns it.
func (s *MemStore) AddUser(username, email, passwordHash, role string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	u := models.User{ID: s.nextID, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: s.tick()}
	for id, r := range s.roles {
		if r.Name == role {
			roleID := id
			u.RoleID = &roleID
		}
	}
	s.users[u.ID] = u
	return u
}

func (s *MemStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// TaskSnapshot returns the stored task without touching call counters.
func (s *MemStore) TaskSnapshot(id int64) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *MemStore) FindByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindByID"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u = u.Public()
	return &u, nil
}

func (s *MemStore) FindCredentials(ctx context.Context, identifier string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindCredentials"); err != nil {
		return nil, err
	}
	for _, id := range s.sortedUserIDs() {
		u := s.users[id]
		if u.Username == identifier || u.Email == identifier {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *MemStore) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ExistsByUsernameOrEmail"); err != nil {
		return false, err
	}
	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) Create(ctx context.Context, user *models.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateUser"); err != nil {
		return 0, err
	}
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return 0, repository.ErrDuplicate
		}
	}
	s.nextID++
	user.ID = s.nextID
	user.CreatedAt = s.tick()
	s.users[user.ID] = *user
	return user.ID, nil
}

func (s *MemStore) RoleName(ctx context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RoleName"); err != nil {
		return "", err
	}
	u, ok := s.users[userID]
	if !ok || u.RoleID == nil {
		return "", repository.ErrNotFound
	}
	r, ok := s.roles[*u.RoleID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return r.Name, nil
}

func (s *MemStore) sortedUserIDs() []int64 {
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Tasks returns a task store view over the same data.
func (s *MemStore) Tasks() *MemTasks { return &MemTasks{s} }

// Roles returns a role store view over the same data.
func (s *MemStore) Roles() *MemRoles { return &MemRoles{s} }

type MemTasks struct{ s *MemStore }

func (t *MemTasks) withNames(task models.Task) models.Task {
	if u, ok := t.s.users[task.CreatedBy]; ok {
		task.CreatorName = u.Username
	}
	task.AssigneeName = nil
	if task.AssignedTo != nil {
		if u, ok := t.s.users[*task.AssignedTo]; ok {
			name := u.Username
			task.AssigneeName = &name
		}
	}
	return task
}

func (t *MemTasks) Create(ctx context.Context, task *models.Task) (int64, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateTask"); err != nil {
		return 0, err
	}
	s.nextID++
	task.ID = s.nextID
	task.CreatedAt = s.tick()
	task.UpdatedAt = task.CreatedAt
	s.tasks[task.ID] = *task
	return task.ID, nil
}

func (t *MemTasks) Read(ctx context.Context, id int64) (*models.Task, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ReadTask"); err != nil {
		return nil, err
	}
	task, ok := s.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	task = t.withNames(task)
	return &task, nil
}

func (t *MemTasks) Update(ctx context.Context, task *models.Task) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateTask"); err != nil {
		return err
	}
	old, ok := s.tasks[task.ID]
	if !ok {
		return repository.ErrNotFound
	}
	old.Title, old.Description, old.Status, old.AssignedTo = task.Title, task.Description, task.Status, task.AssignedTo
	old.UpdatedAt = s.tick()
	s.tasks[task.ID] = old
	return nil
}

func (t *MemTasks) Delete(ctx context.Context, id int64) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteTask"); err != nil {
		return err
	}
	if _, ok := s.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (t *MemTasks) ReadAll(ctx context.Context, userID *int64, isAdmin bool) ([]models.Task, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ReadAllTasks"); err != nil {
		return nil, err
	}
	out := []models.Task{}
	if !isAdmin && userID == nil {
		return out, nil
	}
	for _, task := range s.tasks {
		if isAdmin || task.CreatedBy == *userID || (task.AssignedTo != nil && *task.AssignedTo == *userID) {
			out = append(out, t.withNames(task))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (t *MemTasks) IsCreator(ctx context.Context, taskID, userID int64) (bool, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("IsCreator"); err != nil {
		return false, err
	}
	task, ok := s.tasks[taskID]
	return ok && task.CreatedBy == userID, nil
}

func (t *MemTasks) IsCreatorOrAssignee(ctx context.Context, taskID, userID int64) (bool, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("IsCreatorOrAssignee"); err != nil {
		return false, err
	}
	task, ok := s.tasks[taskID]
	return ok && (task.CreatedBy == userID || (task.AssignedTo != nil && *task.AssignedTo == userID)), nil
}

type MemRoles struct{ s *MemStore }

func (r *MemRoles) Create(ctx context.Context, name string, description *string) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateRole"); err != nil {
		return 0, err
	}
	for _, role := range s.roles {
		if role.Name == name {
			return 0, repository.ErrDuplicate
		}
	}
	s.nextID++
	s.roles[s.nextID] = models.Role{ID: s.nextID, Name: name, Description: description, CreatedAt: s.tick()}
	return s.nextID, nil
}

func (r *MemRoles) Read(ctx context.Context, id int64) (*models.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ReadRole"); err != nil {
		return nil, err
	}
	role, ok := s.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (r *MemRoles) ReadAll(ctx context.Context) ([]models.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ReadAllRoles"); err != nil {
		return nil, err
	}
	out := []models.Role{}
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemRoles) Update(ctx context.Context, id int64, data repository.RoleUpdate) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateRole"); err != nil {
		return err
	}
	if data.Name == nil && data.Description == nil {
		return repository.ErrNothingToUpdate
	}
	role, ok := s.roles[id]
	if !ok {
		return repository.ErrNotFound
	}
	if data.Name != nil {
		role.Name = *data.Name
	}
	if data.Description != nil {
		role.Description = data.Description
	}
	s.roles[id] = role
	return nil
}

func (r *MemRoles) Delete(ctx context.Context, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteRole"); err != nil {
		return err
	}
	if _, ok := s.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (r *MemRoles) GetRoleID(ctx context.Context, name string) (int64, error) {
	s := r.s
	s.mu.Lock()
	if err := s.enter("GetRoleID"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	for id, role := range s.roles {
		if role.Name == name {
			s.mu.Unlock()
			return id, nil
		}
	}
	s.mu.Unlock()
	return r.Create(ctx, name, nil)
}

func (r *MemRoles) UsersByRole(ctx context.Context, roleID int64) ([]models.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UsersByRole"); err != nil {
		return nil, err
	}
	out := []models.User{}
	for _, id := range s.sortedUserIDs() {
		u := s.users[id]
		if u.RoleID != nil && *u.RoleID == roleID {
			out = append(out, u.Public())
		}
	}
	return out, nil
}
