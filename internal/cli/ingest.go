package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikig28/secbrain/internal/browser"
	"github.com/mikig28/secbrain/internal/config"
	"github.com/mikig28/secbrain/internal/ingest"
	"github.com/mikig28/secbrain/internal/logging"
	"github.com/mikig28/secbrain/internal/poller"
	"github.com/mikig28/secbrain/internal/server"
	"github.com/mikig28/secbrain/internal/whatsapp"
)

const shutdownTimeout = 10 * time.Second

// daemonServer is the HTTP side of the daemon.
type daemonServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// daemonPoller is the poller side of the daemon.
type daemonPoller interface {
	Start(ctx context.Context) error
	Stop() error
}

// Execute implements the go-flags Commander interface for IngestCommand.
func (c *IngestCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if c.Port > 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.Headless {
		cfg.Session.Headless = true
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return err
	}
	log, err := logging.Setup(cfg.Logging, logging.Options{
		LogPath: logPath,
		Verbose: c.globals != nil && c.globals.Verbose,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, dbPath, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	images, err := openImages(cfg)
	if err != nil {
		return err
	}
	browserDir, err := cfg.BrowserDataDir()
	if err != nil {
		return err
	}

	proc := ingest.NewProcessor(ingest.NewAdapter(store, images), log)
	p := poller.New(poller.FromSession(cfg.Session), chatFactory(cfg, browserDir, log), proc, log)
	srv := server.New(store, p, proc, server.Options{
		Addr:           net.JoinHostPort(cfg.Daemon.Host, strconv.Itoa(cfg.Daemon.Port)),
		MaxRequestSize: cfg.Daemon.MaxRequestSize,
		ImagesDir:      images.Dir(),
		ImagesURL:      cfg.Images.PublicURL,
		Version:        c.version,
	}, log)

	log.Info("secbrain daemon starting",
		zap.String("version", c.version),
		zap.String("database", dbPath),
		zap.String("images", images.Dir()),
		zap.String("log_file", logPath))

	return c.run(ctx, srv, p, log)
}

// chatFactory returns a factory producing a fresh Chrome-backed WhatsApp
// client per connection.
func chatFactory(cfg *config.Config, browserDir string, log *zap.Logger) poller.ChatFactory {
	return func(target string) poller.Chat {
		session := browser.NewChromeSession(browser.Options{
			UserDataDir: browserDir,
			Headless:    cfg.Session.Headless,
			ExecPath:    cfg.Session.ChromePath,
		}, log)
		return whatsapp.NewClient(session, whatsapp.Options{
			TargetAddress:     target,
			ConnectionTimeout: cfg.Session.ConnectionTimeout(),
			LoginTimeout:      cfg.Session.LoginTimeout(),
		}, log)
	}
}

// run serves until ctx is cancelled or the server fails, then stops the
// poller and shuts the server down.
func (c *IngestCommand) run(ctx context.Context, srv daemonServer, p daemonPoller, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	if c.Start {
		go func() {
			if err := p.Start(ctx); err != nil {
				log.Error("poller did not start", zap.Error(err))
			}
		}()
	}

	select {
	case err := <-errCh:
		if stopErr := p.Stop(); stopErr != nil {
			log.Warn("stop poller", zap.Error(stopErr))
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("server exited unexpectedly")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := p.Stop(); err != nil {
		log.Warn("stop poller", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return <-errCh
}
