package tools

import (
	"context"

	"larkgate/internal/proxy"
)

// Executor performs upstream calls. *proxy.Proxy implements it.
type Executor interface {
	Execute(ctx context.Context, tokens proxy.TokenSource, req *proxy.Request) (*proxy.Envelope, error)
}

// Context is what a tool invocation may use: the caller's token accessor
// and the upstream executor. One is built per inbound request.
type Context struct {
	Tokens   proxy.TokenSource
	Executor Executor
}

// NewContext binds an executor to one caller's tokens.
func NewContext(exec Executor, tokens proxy.TokenSource) *Context {
	return &Context{Tokens: tokens, Executor: exec}
}

// Do executes req for the bound caller.
func (c *Context) Do(ctx context.Context, req *proxy.Request) (*proxy.Envelope, error) {
	return c.Executor.Execute(ctx, c.Tokens, req)
}
