package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type Options struct {
	Addr        string
	H2C         bool
	CORSOrigins []string
}

// New builds the HTTP server. Request contexts derive from base, so
// cancelling base ends long-lived streams during shutdown.
func New(base context.Context, opts Options, router http.Handler) *http.Server {
	handler := CORS(opts.CORSOrigins, router)
	if opts.H2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}
