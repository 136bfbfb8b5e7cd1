package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/adapters/natsbus"
	"github.com/goliatone/go-identity/adapters/promsink"
	"github.com/goliatone/go-identity/adapters/redisdenylist"
	"github.com/goliatone/go-identity/adapters/zerologger"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/httpapi"
	"github.com/goliatone/go-identity/notify/mailer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(flags *globalFlags) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the identity HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Run migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	log := newLogger(cfg.Log, nil)
	logger := zerologger.New(log)

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, repo, err := newEngine(cfg, db, log)
	if err != nil {
		return err
	}

	if migrate {
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	denylist, closeDenylist, err := buildDenylist(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDenylist()
	engine.WithDenylist(denylist)

	if prev, ok := cfg.PreviousIdentity(); ok {
		previous := identity.NewTokenService(prev, denylist).WithLogger(logger)
		engine.WithVerifier(identity.NewMultiTokenVerifier(engine.Tokens(), previous))
		log.Info().Msg("accepting tokens signed with the previous key")
	}

	sinks := identity.MultiActivitySink{}
	notifiers := channelNotifier{logger: logger}

	if cfg.NATS.URL != "" {
		conn, err := natsbus.Connect(cfg.NATS.URL, appName)
		if err != nil {
			return err
		}
		defer conn.Close()

		bus := natsbus.New(conn).WithActivitySubject(cfg.NATS.ActivitySubject)
		sinks = append(sinks, bus)
		notifiers.mobile = bus
		notifiers.email = bus
	}

	if cfg.SMTP.Host != "" {
		mail, err := mailer.New(cfg.SMTP)
		if err != nil {
			return err
		}
		notifiers.email = mail
	}

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
	})

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sink, err := promsink.New(reg, "identity")
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	engine.WithActivitySink(sinks)

	async := identity.NewAsyncNotifier(notifiers).WithLogger(logger)
	defer async.Wait()

	httpapi.New(engine, async).WithLogger(logger).Mount(app)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("identity api listening")
		errCh <- app.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func buildDenylist(ctx context.Context, cfg *config.Config) (identity.Denylist, func(), error) {
	if cfg.Redis.Addr == "" {
		return identity.NewMemoryDenylist(), func() {}, nil
	}

	client, err := redisdenylist.Open(ctx, redisdenylist.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	return redisdenylist.New(client), func() { _ = client.Close() }, nil
}

// channelNotifier routes confirmations by channel. Password resets always
// go to the email notifier.
type channelNotifier struct {
	email  identity.Notifier
	mobile identity.Notifier
	logger identity.Logger
}

func (n channelNotifier) SendConfirmation(ctx context.Context, msg identity.ConfirmationNotice) error {
	target := n.email
	if msg.Channel == identity.ChannelMobile {
		target = n.mobile
	}
	if target == nil {
		n.logger.Warn("no notifier configured, dropping confirmation", "channel", msg.Channel)
		return nil
	}
	return target.SendConfirmation(ctx, msg)
}

func (n channelNotifier) SendPasswordReset(ctx context.Context, msg identity.PasswordResetNotice) error {
	if n.email == nil {
		return nil
	}
	return n.email.SendPasswordReset(ctx, msg)
}
