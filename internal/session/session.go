package session

import (
	"time"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/pkg/logger"
)

const (
	localsKey = "session"

	FlashSuccess = "success"
	FlashError   = "error"

	flashPrefix = "flash_"
)

type Config struct {
	Expiration time.Duration
	Secure     bool
	// Storage defaults to fiber's in-memory storage when nil.
	Storage fiber.Storage
}

// Manager loads one session per request and commits it afterwards.
type Manager struct {
	store *fibersession.Store
}

func NewManager(cfg Config) *Manager {
	storeCfg := fibersession.Config{
		Expiration:     cfg.Expiration,
		KeyLookup:      "cookie:task_session",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.Secure,
		CookieSameSite: "Lax",
	}
	if cfg.Storage != nil {
		storeCfg.Storage = cfg.Storage
	}
	return &Manager{store: fibersession.New(storeCfg)}
}

// Middleware exposes the session through FromCtx for the rest of the chain.
func (m *Manager) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := m.store.Get(c)
		if err != nil {
			logger.ErrorLogger.Error("Error loading session", zap.Error(err))
			return fiber.ErrInternalServerError
		}
		sess := &Session{raw: raw}
		c.Locals(localsKey, sess)

		err = c.Next()
		if commitErr := sess.commit(); commitErr != nil {
			logger.ErrorLogger.Error("Error saving session", zap.Error(commitErr))
		}
		return err
	}
}

// FromCtx returns the request session, or nil when the middleware did not run.
func FromCtx(c *fiber.Ctx) *Session {
	sess, _ := c.Locals(localsKey).(*Session)
	return sess
}

// Session is nil-safe: a nil *Session behaves as an empty, anonymous one.
type Session struct {
	raw       *fibersession.Session
	dirty     bool
	destroyed bool
}

func (s *Session) Get(key string) interface{} {
	if s == nil || s.destroyed {
		return nil
	}
	return s.raw.Get(key)
}

// Set on a destroyed session starts a fresh one under a new id, so a
// request that logs out can still leave a flash for the next page.
func (s *Session) Set(key string, val interface{}) {
	if s == nil || !s.revive() {
		return
	}
	s.raw.Set(key, val)
	s.dirty = true
}

func (s *Session) revive() bool {
	if !s.destroyed {
		return true
	}
	if err := s.raw.Regenerate(); err != nil {
		logger.ErrorLogger.Error("Error regenerating session", zap.Error(err))
		return false
	}
	s.destroyed = false
	return true
}

func (s *Session) Delete(key string) {
	if s == nil || s.destroyed {
		return
	}
	s.raw.Delete(key)
	s.dirty = true
}

// Destroy drops the stored data and expires the cookie.
func (s *Session) Destroy() error {
	if s == nil || s.destroyed {
		return nil
	}
	s.destroyed = true
	return s.raw.Destroy()
}

// Flash stores a one-shot message of the given kind.
func (s *Session) Flash(kind, message string) {
	s.Set(flashPrefix+kind, message)
}

// TakeFlash returns and clears the message of the given kind.
func (s *Session) TakeFlash(kind string) string {
	msg, _ := s.Get(flashPrefix + kind).(string)
	if msg != "" {
		s.Delete(flashPrefix + kind)
	}
	return msg
}

// Flashes drains both message kinds.
func (s *Session) Flashes() map[string]string {
	out := map[string]string{}
	for _, kind := range []string{FlashSuccess, FlashError} {
		if msg := s.TakeFlash(kind); msg != "" {
			out[kind] = msg
		}
	}
	return out
}

// Untouched fresh sessions are not persisted, so anonymous traffic does not
// allocate storage.
func (s *Session) commit() error {
	if s == nil || s.destroyed {
		return nil
	}
	if !s.dirty && s.raw.Fresh() {
		return nil
	}
	return s.raw.Save()
}
