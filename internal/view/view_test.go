package view

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workaandrey/task-manager/internal/models"
)

func render(t *testing.T, name string, page Page) (string, string) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return Render(c, name, page) })
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.Header.Get("Content-Type"), string(body)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "In progress", StatusLabel(models.TaskStatusInProgress))
	assert.Equal(t, "Pending", StatusLabel(models.TaskStatusPending))
	assert.Equal(t, "", StatusLabel(""))
}

func TestTaskListEscapesAndShowsActions(t *testing.T) {
	user := &models.User{ID: 1, Username: "alice"}
	page := Page{
		User:    user,
		IsAdmin: true,
		Tasks: []models.Task{
			{ID: 3, Title: "<script>x</script>", Status: models.TaskStatusInProgress, CreatorName: "alice", UpdatedAt: time.Now()},
		},
		Editable: map[int64]bool{3: true},
		Flashes:  map[string]string{"success": "Task created successfully"},
	}
	ctype, body := render(t, Tasks, page)

	assert.Contains(t, ctype, "text/html")
	assert.Contains(t, body, "&lt;script&gt;x&lt;/script&gt;")
	assert.Contains(t, body, "In progress")
	assert.Contains(t, body, "Unassigned")
	assert.Contains(t, body, `/tasks/3/edit`)
	assert.Contains(t, body, `/tasks/3/delete`)
	assert.Contains(t, body, "Task created successfully")
}

func TestTaskListHidesActionsWithoutRights(t *testing.T) {
	page := Page{
		User:  &models.User{ID: 2, Username: "bob"},
		Tasks: []models.Task{{ID: 3, Title: "T1", Status: models.TaskStatusPending, UpdatedAt: time.Now()}},
	}
	_, body := render(t, Tasks, page)
	assert.NotContains(t, body, `/tasks/3/edit`)
	assert.NotContains(t, body, `/tasks/3/delete`)
}

func TestTaskFormModes(t *testing.T) {
	statuses := []string{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusCompleted}
	user := &models.User{ID: 1, Username: "alice"}

	_, body := render(t, TaskForm, Page{User: user, Statuses: statuses})
	assert.Contains(t, body, `action="/tasks/create"`)

	task := &models.Task{ID: 9, Title: "T9", Status: models.TaskStatusCompleted}
	_, body = render(t, TaskForm, Page{User: user, Task: task, Statuses: statuses})
	assert.Contains(t, body, `action="/tasks/9/edit"`)
	assert.Contains(t, body, `value="completed" selected`)
}

func TestErrorPageDetail(t *testing.T) {
	_, body := render(t, Error, Page{Status: 500, Message: "Internal Server Error", Detail: "pq: boom"})
	assert.Contains(t, body, "pq: boom")

	_, body = render(t, Error, Page{Status: 500, Message: "Internal Server Error"})
	assert.NotContains(t, body, "<pre>")
}

func TestUnknownView(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return Render(c, "missing", Page{}) })
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
