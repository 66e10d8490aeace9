package session

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workaandrey/task-manager/internal/testutil"
)

func newTestApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(NewManager(cfg).Middleware())
	app.Get("/set", func(c *fiber.Ctx) error {
		sess := FromCtx(c)
		sess.Set("user_id", int64(42))
		sess.Flash(FlashSuccess, "Saved")
		return c.SendString("ok")
	})
	app.Get("/read", func(c *fiber.Ctx) error {
		sess := FromCtx(c)
		id, _ := sess.Get("user_id").(int64)
		flash := sess.TakeFlash(FlashSuccess)
		return c.JSON(fiber.Map{"user_id": id, "flash": flash})
	})
	app.Get("/destroy", func(c *fiber.Ctx) error {
		return FromCtx(c).Destroy()
	})
	app.Get("/logout", func(c *fiber.Ctx) error {
		sess := FromCtx(c)
		if err := sess.Destroy(); err != nil {
			return err
		}
		sess.Flash(FlashSuccess, "Bye")
		return c.SendString("bye")
	})
	app.Get("/anonymous", func(c *fiber.Ctx) error {
		return c.SendString("hello")
	})
	return app
}

func do(t *testing.T, app *fiber.App, path, cookie string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(body)
}

func sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == "task_session" {
			return c.Name + "=" + c.Value
		}
	}
	return ""
}

func TestFlashIsReadOnce(t *testing.T) {
	app := newTestApp(Config{Expiration: time.Hour})

	resp, _ := do(t, app, "/set", "")
	cookie := sessionCookie(resp)
	require.NotEmpty(t, cookie)

	_, body := do(t, app, "/read", cookie)
	assert.JSONEq(t, `{"user_id":42,"flash":"Saved"}`, body)

	_, body = do(t, app, "/read", cookie)
	assert.JSONEq(t, `{"user_id":42,"flash":""}`, body)
}

func TestDestroyForgetsSession(t *testing.T) {
	app := newTestApp(Config{Expiration: time.Hour})

	resp, _ := do(t, app, "/set", "")
	cookie := sessionCookie(resp)

	do(t, app, "/destroy", cookie)

	_, body := do(t, app, "/read", cookie)
	assert.JSONEq(t, `{"user_id":0,"flash":""}`, body)
}

func TestFlashAfterDestroyUsesFreshSession(t *testing.T) {
	app := newTestApp(Config{Expiration: time.Hour})

	resp, _ := do(t, app, "/set", "")
	oldCookie := sessionCookie(resp)

	resp, _ = do(t, app, "/logout", oldCookie)
	newCookie := sessionCookie(resp)
	require.NotEmpty(t, newCookie)
	assert.NotEqual(t, oldCookie, newCookie)

	_, body := do(t, app, "/read", newCookie)
	assert.JSONEq(t, `{"user_id":0,"flash":"Bye"}`, body)

	_, body = do(t, app, "/read", oldCookie)
	assert.JSONEq(t, `{"user_id":0,"flash":""}`, body)
}

func TestAnonymousRequestSetsNoCookie(t *testing.T) {
	app := newTestApp(Config{Expiration: time.Hour})

	resp, body := do(t, app, "/anonymous", "")
	assert.Equal(t, "hello", body)
	assert.Empty(t, sessionCookie(resp))
}

func TestNilSessionIsAnonymous(t *testing.T) {
	var s *Session
	assert.Nil(t, s.Get("user_id"))
	s.Set("user_id", 1)
	assert.Empty(t, s.TakeFlash(FlashError))
	assert.NoError(t, s.Destroy())
	assert.Empty(t, s.Flashes())
}

func TestRedisStorageBacksSessions(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") != "" {
		t.Skip("docker tests disabled")
	}
	client, container, err := testutil.StartRedis()
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer container.Close()
	defer client.Close()

	storage := NewRedisStorage(client, "test_session:")

	val, err := storage.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, storage.Set("k", []byte("v"), time.Minute))
	val, err = storage.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, storage.Delete("k"))
	val, err = storage.Get("k")
	require.NoError(t, err)
	assert.Nil(t, val)

	app := newTestApp(Config{Expiration: time.Hour, Storage: storage})
	resp, _ := do(t, app, "/set", "")
	cookie := sessionCookie(resp)
	_, body := do(t, app, "/read", cookie)
	assert.JSONEq(t, `{"user_id":42,"flash":"Saved"}`, body)

	require.NoError(t, storage.Reset())
	_, body = do(t, app, "/read", cookie)
	assert.JSONEq(t, `{"user_id":0,"flash":""}`, body)
}
