package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/permission"
	"github.com/workaandrey/task-manager/internal/repository"
	"github.com/workaandrey/task-manager/internal/testutil"
	"github.com/workaandrey/task-manager/pkg/crypto"
)

var (
	testDB     *sqlx.DB
	skipReason string
)

func TestMain(m *testing.M) {
	crypto.Cost = bcrypt.MinCost

	if os.Getenv("SKIP_DOCKER_TESTS") != "" {
		skipReason = "SKIP_DOCKER_TESTS is set"
		os.Exit(m.Run())
	}
	db, container, err := testutil.StartPostgres()
	if err != nil {
		skipReason = err.Error()
		os.Exit(m.Run())
	}
	testDB = db

	code := m.Run()

	db.Close()
	if err := container.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "could not purge postgres: %v\n", err)
	}
	os.Exit(code)
}

// freshDB recreates the schema so every test starts from the default roles.
func freshDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testDB == nil {
		t.Skipf("postgres unavailable: %s", skipReason)
	}
	ctx := context.Background()
	require.NoError(t, repository.DeleteAllTable(ctx, testDB))
	require.NoError(t, repository.CreateTableIfNotExists(ctx, testDB))
	return testDB
}

func createUser(t *testing.T, db *sqlx.DB, username, role string) models.User {
	t.Helper()
	ctx := context.Background()
	roleID, err := repository.NewRoleRepository(db).GetRoleID(ctx, role)
	require.NoError(t, err)
	hash, err := crypto.HashPassword("password")
	require.NoError(t, err)
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: hash, RoleID: &roleID}
	_, err = repository.NewUserRepository(db).Create(ctx, &u)
	require.NoError(t, err)
	return u
}

func createTask(t *testing.T, db *sqlx.DB, title string, creator models.User, assignee *models.User) models.Task {
	t.Helper()
	task := models.Task{Title: title, Status: models.TaskStatusPending, CreatedBy: creator.ID}
	if assignee != nil {
		id := assignee.ID
		task.AssignedTo = &id
	}
	_, err := repository.NewTaskRepository(db).Create(context.Background(), &task)
	require.NoError(t, err)
	return task
}

func TestDefaultRolesProvisioned(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	roles := repository.NewRoleRepository(db)

	all, err := roles.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.RoleAdmin, all[0].Name)
	assert.Equal(t, models.RoleUser, all[1].Name)
	require.NotNil(t, all[0].Description)

	require.NoError(t, roles.EnsureDefaultRoles(ctx))
	all, err = roles.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetRoleIDCreatesMissingRole(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	roles := repository.NewRoleRepository(db)

	exists, err := roles.RoleExists(ctx, "manager")
	require.NoError(t, err)
	assert.False(t, exists)

	id, err := roles.GetRoleID(ctx, "manager")
	require.NoError(t, err)
	again, err := roles.GetRoleID(ctx, "manager")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	name, err := roles.GetRoleName(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "manager", name)

	_, err = roles.GetRoleName(ctx, id+100)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetRoleIDRecreatesMissingTables(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	require.NoError(t, repository.DeleteAllTable(ctx, db))

	id, err := repository.NewRoleRepository(db).GetRoleID(ctx, models.RoleUser)
	require.NoError(t, err)
	assert.Positive(t, id)

	all, err := repository.NewRoleRepository(db).ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRoleUpdateAndDelete(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	roles := repository.NewRoleRepository(db)

	id, err := roles.Create(ctx, "manager", nil)
	require.NoError(t, err)
	_, err = roles.Create(ctx, "manager", nil)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	assert.ErrorIs(t, roles.Update(ctx, id, repository.RoleUpdate{}), repository.ErrNothingToUpdate)

	desc := "Team lead"
	require.NoError(t, roles.Update(ctx, id, repository.RoleUpdate{Description: &desc}))
	role, err := roles.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "manager", role.Name)
	require.NotNil(t, role.Description)
	assert.Equal(t, desc, *role.Description)

	taken := models.RoleAdmin
	assert.ErrorIs(t, roles.Update(ctx, id, repository.RoleUpdate{Name: &taken}), repository.ErrDuplicate)
	assert.ErrorIs(t, roles.Update(ctx, id+100, repository.RoleUpdate{Description: &desc}), repository.ErrNotFound)

	require.NoError(t, roles.Delete(ctx, id))
	_, err = roles.Read(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, roles.Delete(ctx, id), repository.ErrNotFound)
}

func TestUsersByRole(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	admin := createUser(t, db, "root", models.RoleAdmin)
	alice := createUser(t, db, "alice", models.RoleUser)
	bob := createUser(t, db, "bob", models.RoleUser)

	users, err := repository.NewRoleRepository(db).UsersByRole(ctx, *alice.RoleID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, alice.ID, users[0].ID)
	assert.Equal(t, bob.ID, users[1].ID)
	assert.Empty(t, users[0].PasswordHash)

	users, err = repository.NewRoleRepository(db).UsersByRole(ctx, *admin.RoleID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "root", users[0].Username)
}

func TestUserLookups(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	users := repository.NewUserRepository(db)
	alice := createUser(t, db, "alice", models.RoleUser)

	found, err := users.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)
	assert.Empty(t, found.PasswordHash)

	for _, identifier := range []string{"alice", "alice@example.com"} {
		creds, err := users.FindCredentials(ctx, identifier)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, creds.ID)
		assert.True(t, crypto.CheckPassword(creds.PasswordHash, "password"))
	}

	_, err = users.FindCredentials(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = users.FindByID(ctx, alice.ID+100)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	exists, err := users.ExistsByUsernameOrEmail(ctx, "someone", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = users.Create(ctx, &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "x", RoleID: alice.RoleID})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	role, err := users.RoleName(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, role)
}

func TestCreateAdminUserIsIdempotent(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, repository.CreateAdminUser(ctx, db, "admin", "admin@example.com", "changeme"))
	}

	roles := repository.NewRoleRepository(db)
	adminRole, err := roles.GetRoleID(ctx, models.RoleAdmin)
	require.NoError(t, err)
	admins, err := roles.UsersByRole(ctx, adminRole)
	require.NoError(t, err)
	require.Len(t, admins, 1)

	creds, err := repository.NewUserRepository(db).FindCredentials(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, crypto.CheckPassword(creds.PasswordHash, "changeme"))
}

func TestTaskLifecycle(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	tasks := repository.NewTaskRepository(db)
	alice := createUser(t, db, "alice", models.RoleUser)
	bob := createUser(t, db, "bob", models.RoleUser)

	task := createTask(t, db, "Write report", alice, &bob)
	read, err := tasks.Read(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write report", read.Title)
	assert.Equal(t, models.TaskStatusPending, read.Status)
	assert.Equal(t, "alice", read.CreatorName)
	require.NotNil(t, read.AssigneeName)
	assert.Equal(t, "bob", *read.AssigneeName)

	read.Status = models.TaskStatusCompleted
	read.AssignedTo = nil
	require.NoError(t, tasks.Update(ctx, read))
	read, err = tasks.Read(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, read.Status)
	assert.Nil(t, read.AssigneeName)
	assert.Equal(t, alice.ID, read.CreatedBy)

	missing := *read
	missing.ID = task.ID + 100
	assert.ErrorIs(t, tasks.Update(ctx, &missing), repository.ErrNotFound)

	require.NoError(t, tasks.Delete(ctx, task.ID))
	_, err = tasks.Read(ctx, task.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, tasks.Delete(ctx, task.ID), repository.ErrNotFound)
}

func TestTaskVisibility(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	tasks := repository.NewTaskRepository(db)
	alice := createUser(t, db, "alice", models.RoleUser)
	bob := createUser(t, db, "bob", models.RoleUser)
	carol := createUser(t, db, "carol", models.RoleUser)

	own := createTask(t, db, "Alice owns", alice, nil)
	assigned := createTask(t, db, "Bob assigned", alice, &bob)
	other := createTask(t, db, "Carol owns", carol, nil)

	all, err := tasks.ReadAll(ctx, nil, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID)

	none, err := tasks.ReadAll(ctx, nil, false)
	require.NoError(t, err)
	assert.Empty(t, none)

	forBob, err := tasks.ReadAll(ctx, &bob.ID, false)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.Equal(t, assigned.ID, forBob[0].ID)

	forAlice, err := tasks.ReadAll(ctx, &alice.ID, false)
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)

	ok, err := tasks.IsCreator(ctx, own.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tasks.IsCreator(ctx, assigned.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = tasks.IsCreatorOrAssignee(ctx, assigned.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tasks.IsCreatorOrAssignee(ctx, other.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissionsAgainstDatabase(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	admin := createUser(t, db, "root", models.RoleAdmin)
	alice := createUser(t, db, "alice", models.RoleUser)
	bob := createUser(t, db, "bob", models.RoleUser)
	carol := createUser(t, db, "carol", models.RoleUser)
	task := createTask(t, db, "T1", alice, &bob)

	check := func(u models.User) *permission.Checker {
		return permission.NewChecker(users, tasks, &u)
	}

	assert.True(t, check(alice).CanEditTask(ctx, task.ID))
	assert.True(t, check(bob).CanViewTask(ctx, task.ID))
	assert.False(t, check(bob).CanEditTask(ctx, task.ID))
	assert.False(t, check(carol).CanViewTask(ctx, task.ID))

	assert.True(t, check(admin).IsAdmin(ctx))
	assert.True(t, check(admin).CanViewTask(ctx, task.ID))
	assert.False(t, check(admin).CanEditTask(ctx, task.ID))
	assert.True(t, check(admin).CanDeleteTask(ctx, task.ID))
	assert.False(t, check(alice).CanDeleteTask(ctx, task.ID))
	assert.False(t, permission.NewChecker(users, tasks, nil).CanViewTask(ctx, task.ID))
}
