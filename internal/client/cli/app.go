// Package cli is the interactive front end: it wires a session to the
// configured transport and drives it from a read-eval-print loop.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goteamwork/roomsync/internal/client/backend"
	"github.com/goteamwork/roomsync/internal/client/config"
	"github.com/goteamwork/roomsync/internal/client/session"
	"github.com/goteamwork/roomsync/internal/host"
	"github.com/goteamwork/roomsync/internal/logging"
)

// App holds the CLI wiring: config, session and the input reader.
type App struct {
	config  *config.Config
	session *session.Session
	core    *host.Core
	server  *host.Server
	logger  logging.Logger
	reader  *bufio.Reader
}

// NewApp builds the transport for the configured mode. Host mode runs
// the in-process core and serves its API; client mode talks to a remote
// host. Either way the session code paths are identical.
func NewApp(cfg *config.Config, logger logging.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger, reader: bufio.NewReader(os.Stdin)}

	var b backend.Backend
	switch cfg.Mode {
	case config.ModeHost:
		core, err := host.NewCore(logger)
		if err != nil {
			return nil, fmt.Errorf("init host core: %w", err)
		}
		a.core = core
		a.server = host.NewServer(core, cfg.ListenAddr, logger)
		b = backend.NewLocalBackend(core)
	default:
		b = backend.NewHTTPBackend(cfg.ServerURL, cfg.RequestTimeout, logger)
	}

	a.session = session.New(cfg, b, logger)
	return a, nil
}

// Run starts the host server when hosting, registers the identity and
// enters the command loop. It returns when the user exits or the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.server != nil {
		a.core.StartMaintenance(ctx)
		go func() {
			if err := a.server.Run(ctx); err != nil {
				a.logger.Error(ctx, "api server stopped", "error", err)
			}
		}()
	}

	name := strings.TrimSpace(a.config.UserName)
	for name == "" {
		fmt.Print("Display name: ")
		line, err := a.reader.ReadString('\n')
		if err != nil {
			return err
		}
		name = strings.TrimSpace(line)
	}

	if err := a.session.Start(ctx, name); err != nil {
		return err
	}
	defer a.session.Close()

	fmt.Printf("Connected as %s (%s). Type 'help' for commands.\n",
		a.session.UserName(), a.session.UserID())
	a.repl(ctx)
	return nil
}
