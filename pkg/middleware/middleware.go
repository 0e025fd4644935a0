package middleware

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain is an ordered middleware stack. The first middleware added is the
// outermost, so it sees the request first and the response last.
type Chain struct {
	stack []Middleware
}

// Use appends mw to the chain.
func (c *Chain) Use(mw ...Middleware) {
	c.stack = append(c.stack, mw...)
}

// Then wraps handler in every middleware of the chain.
func (c *Chain) Then(handler http.Handler) http.Handler {
	for i := len(c.stack) - 1; i >= 0; i-- {
		handler = c.stack[i](handler)
	}
	return handler
}
