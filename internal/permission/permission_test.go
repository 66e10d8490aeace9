package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/testutil"
)

type fixture struct {
	store                              *testutil.MemStore
	admin, creator, assignee, outsider models.User
	task                               models.Task
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := testutil.NewMemStore()
	f := fixture{
		store:    store,
		admin:    store.AddUser("root", "root@example.com", "", models.RoleAdmin),
		creator:  store.AddUser("alice", "alice@example.com", "", models.RoleUser),
		assignee: store.AddUser("bob", "bob@example.com", "", models.RoleUser),
		outsider: store.AddUser("carol", "carol@example.com", "", models.RoleUser),
	}
	assigned := f.assignee.ID
	f.task = models.Task{Title: "T1", Status: models.TaskStatusPending, CreatedBy: f.creator.ID, AssignedTo: &assigned}
	_, err := store.Tasks().Create(context.Background(), &f.task)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return f
}

func (f fixture) checker(u *models.User) *Checker {
	return NewChecker(f.store, f.store.Tasks(), u)
}

func TestCanViewTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		user models.User
		want bool
	}{
		{"admin", f.admin, true},
		{"creator", f.creator, true},
		{"assignee", f.assignee, true},
		{"outsider", f.outsider, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := tc.user
			assert.Equal(t, tc.want, f.checker(&u).CanViewTask(ctx, f.task.ID))
		})
	}

	assert.False(t, f.checker(&f.creator).CanViewTask(ctx, f.task.ID+100))
	assert.True(t, f.checker(&f.admin).CanViewTask(ctx, f.task.ID+100))
}

func TestCanDeleteTaskOnlyAdmins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, u := range []models.User{f.admin, f.creator, f.assignee, f.outsider} {
		u := u
		want := u.ID == f.admin.ID
		assert.Equal(t, want, f.checker(&u).CanDeleteTask(ctx, f.task.ID), u.Username)
		assert.Equal(t, want, f.checker(&u).IsAdmin(ctx), u.Username)
	}
}

func TestCanEditTaskOnlyCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.checker(&f.creator).CanEditTask(ctx, f.task.ID))
	assert.False(t, f.checker(&f.assignee).CanEditTask(ctx, f.task.ID))
	assert.False(t, f.checker(&f.outsider).CanEditTask(ctx, f.task.ID))
	assert.False(t, f.checker(&f.admin).CanEditTask(ctx, f.task.ID))
}

func TestCanCreateTask(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.checker(&f.outsider).CanCreateTask(context.Background()))
}

func TestChecksFailClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Err = errors.New("connection refused")

	c := f.checker(&f.admin)
	assert.False(t, c.IsAdmin(ctx))
	assert.False(t, c.CanViewTask(ctx, f.task.ID))
	assert.False(t, c.CanDeleteTask(ctx, f.task.ID))
	assert.False(t, f.checker(&f.creator).CanEditTask(ctx, f.task.ID))
}

func TestNoUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.checker(nil)

	assert.False(t, c.IsAdmin(ctx))
	assert.False(t, c.CanViewTask(ctx, f.task.ID))
	assert.False(t, c.CanEditTask(ctx, f.task.ID))
	assert.False(t, c.CanDeleteTask(ctx, f.task.ID))
	assert.Zero(t, f.store.Calls["RoleName"])
}

func TestEachCheckQueriesAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.checker(&f.admin)

	c.IsAdmin(ctx)
	c.IsAdmin(ctx)
	c.CanDeleteTask(ctx, f.task.ID)

	assert.Equal(t, 3, f.store.Calls["RoleName"])
}
