// Package router maps (method, path pattern) pairs to handlers. Patterns are
// literal paths with {name} placeholders; the first registered full match wins.
package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler receives the placeholder captures positionally, in declaration order.
type Handler func(c *fiber.Ctx, args ...string) error

var placeholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

type route struct {
	pattern string
	re      *regexp.Regexp
	names   []string
	handler Handler
}

type Router struct {
	routes   map[string][]route
	notFound fiber.Handler
}

func New() *Router {
	return &Router{routes: map[string][]route{}}
}

// AddRoute panics on a malformed pattern; routes are registered at startup.
func (r *Router) AddRoute(method, pattern string, h Handler) {
	re, names := compile(pattern)
	method = strings.ToUpper(method)
	r.routes[method] = append(r.routes[method], route{pattern: pattern, re: re, names: names, handler: h})
}

func (r *Router) Get(pattern string, h Handler)    { r.AddRoute(fiber.MethodGet, pattern, h) }
func (r *Router) Post(pattern string, h Handler)   { r.AddRoute(fiber.MethodPost, pattern, h) }
func (r *Router) Put(pattern string, h Handler)    { r.AddRoute(fiber.MethodPut, pattern, h) }
func (r *Router) Delete(pattern string, h Handler) { r.AddRoute(fiber.MethodDelete, pattern, h) }

func (r *Router) SetNotFound(h fiber.Handler) {
	r.notFound = h
}

func compile(pattern string) (*regexp.Regexp, []string) {
	pattern = Normalize(pattern)
	var (
		b     strings.Builder
		names []string
		seen  = map[string]bool{}
		last  int
	)
	b.WriteString("^")
	for _, loc := range placeholder.FindAllStringSubmatchIndex(pattern, -1) {
		name := pattern[loc[2]:loc[3]]
		if seen[name] {
			panic(fmt.Sprintf("router: duplicate placeholder %q in %q", name, pattern))
		}
		seen[name] = true
		names = append(names, name)
		b.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		b.WriteString("(?P<" + name + ">[a-zA-Z0-9_-]+)")
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")
	return regexp.MustCompile(b.String()), names
}

// Normalize strips the query string and trailing slash and ensures a
// leading slash. It is idempotent.
func Normalize(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	uri = strings.TrimRight(uri, "/")
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return uri
}

// Match returns the handler and captures for the request, if any route fits.
func (r *Router) Match(method, uri string) (Handler, []string, bool) {
	path := Normalize(uri)
	for _, rt := range r.routes[strings.ToUpper(method)] {
		m := rt.re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		args := make([]string, 0, len(rt.names))
		for _, name := range rt.names {
			args = append(args, m[rt.re.SubexpIndex(name)])
		}
		return rt.handler, args, true
	}
	return nil, nil, false
}

// Dispatch runs the first matching handler or the not-found handler.
func (r *Router) Dispatch(c *fiber.Ctx) error {
	h, args, ok := r.Match(c.Method(), c.OriginalURL())
	if ok {
		return h(c, args...)
	}
	if r.notFound != nil {
		return r.notFound(c)
	}
	return c.Status(fiber.StatusNotFound).SendString("404 - Page not found")
}

// Handler adapts the router to fiber so it can be mounted with app.Use.
func (r *Router) Handler() fiber.Handler {
	return r.Dispatch
}
