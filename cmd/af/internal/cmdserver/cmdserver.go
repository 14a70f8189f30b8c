// Package cmdserver implements the HTTP server subcommand.
package cmdserver

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/creachadair/authfish/cmd/af/config"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
)

var Command = &command.C{
	Name: "server",
	Help: `Run an HTTP server for one-time passwords.

The server reads the accounts file and serves:

  GET /accounts[?q=query]       -- list unarchived accounts (JSON)
  GET /code/{label}[?shift=n]   -- the current code for an account (JSON)
  GET /stream/{label}           -- refreshed codes for an account (SSE)

The accounts file is reloaded when it changes.`,
	SetFlags: command.Flags(flax.MustBind, &serverFlags),
	Run:      command.Adapt(runServer),
}

var serverFlags struct {
	Addr string `flag:"addr,Service address (host:port)"`
}

func runServer(env *command.Env) error {
	if serverFlags.Addr == "" {
		return env.Usagef("you must provide a service --addr")
	}
	w, err := config.WatchAccounts(env)
	if err != nil {
		return err
	}
	api := &API{Accounts: w.File}
	ctx, cancel := signal.NotifyContext(env.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Request contexts derive from ctx, so that open streams end on shutdown.
	srv := &http.Server{
		Addr:        serverFlags.Addr,
		Handler:     api.ServeMux(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Printf("Watching for updates at %q", config.AccountsPath(env))
		w.Run(ctx)
	}()
	go func() {
		log.Printf("Serving at %q", serverFlags.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("WARNING: Server error %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Signal received, stopping server")
	return srv.Shutdown(context.Background())
}
