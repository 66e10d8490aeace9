// Package view renders the HTML pages from embedded templates.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/workaandrey/task-manager/internal/models"
)

const (
	Login     = "login"
	Register  = "register"
	Dashboard = "dashboard"
	Tasks     = "tasks"
	TaskForm  = "task_form"
	NotFound  = "not_found"
	Error     = "error"
)

//go:embed templates/*.html
var files embed.FS

var funcs = template.FuncMap{
	"statusLabel": StatusLabel,
}

var pages = mustParse(Login, Register, Dashboard, Tasks, TaskForm, NotFound, Error)

// Page is the data every template receives. Pages read only what they need.
type Page struct {
	Title   string
	User    *models.User
	IsAdmin bool
	Flashes map[string]string

	Tasks    []models.Task
	Editable map[int64]bool
	Task     *models.Task
	Statuses []string

	Status  int
	Message string
	Detail  string
	Stack   string
}

func mustParse(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.New(name).Funcs(funcs).ParseFS(files,
			"templates/layout.html", "templates/task_table.html", "templates/"+name+".html"))
	}
	return out
}

// StatusLabel turns "in_progress" into "In progress".
func StatusLabel(status string) string {
	if status == "" {
		return ""
	}
	s := strings.ReplaceAll(status, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

// Render writes the named page with the current response status.
func Render(c *fiber.Ctx, name string, page Page) error {
	tmpl, ok := pages[name]
	if !ok {
		return fmt.Errorf("unknown view %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}
