// Package app wires configuration, storage, Discord and the HTTP listeners
// into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/small-frappuccino/quickvids/pkg/config"
	"github.com/small-frappuccino/quickvids/pkg/control"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/discord/premium"
	"github.com/small-frappuccino/quickvids/pkg/discord/session"
	"github.com/small-frappuccino/quickvids/pkg/discord/webhook"
	"github.com/small-frappuccino/quickvids/pkg/log"
	"github.com/small-frappuccino/quickvids/pkg/server"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	"github.com/small-frappuccino/quickvids/pkg/theme"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
	"github.com/small-frappuccino/quickvids/pkg/util"
)

// Overridden in tests.
var openSession = session.NewDiscordSession

// Run bootstraps the bot and blocks until SIGINT or SIGTERM.
func Run() error {
	started := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger first so subsequent steps can log meaningfully
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	if err := log.SetupLogger(log.Options{Dir: cfg.LogDir, Level: level}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.GlobalLogger.Sync()

	if cfg.Theme != "" {
		if err := theme.SetCurrent(cfg.Theme); err != nil {
			log.ApplicationLogger().Warn("Unknown theme; keeping default", "theme", cfg.Theme, "err", err)
		} else {
			log.ApplicationLogger().Info("🌈 Theme applied", "theme", cfg.Theme)
		}
	}

	log.ApplicationLogger().Info("🚀 Starting QuickVids...", "version", Version)

	log.DiscordLogger().Info("🔑 Attempting to authenticate with Discord API...")
	sess, self, err := openSession(context.Background(), cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	log.DiscordLogger().Info(fmt.Sprintf("✅ Authenticated as %s", self.Username))

	a, err := newApplication(cfg, sess, cfg.Addr())
	if err != nil {
		return err
	}
	if err := a.start(context.Background()); err != nil {
		a.stop(context.Background())
		return err
	}

	log.ApplicationLogger().Info(fmt.Sprintf("🎯 QuickVids initialized successfully in %s", time.Since(started).Round(time.Millisecond)))
	log.ApplicationLogger().Info("🔗 Invite link", "url", cfg.InviteURL())
	log.ApplicationLogger().Info("🤖 QuickVids running. Press Ctrl+C to stop...")

	util.WaitForInterrupt()
	log.ApplicationLogger().Info("🛑 Stopping QuickVids...")

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), 30*time.Second, errors.New("application shutdown"))
	defer cancel()
	a.stop(shutdownCtx)
	return nil
}

// application holds everything started by Run.
type application struct {
	cfg      *config.Config
	session  *discordgo.Session
	store    *storage.Store
	handler  *commands.CommandHandler
	server   *server.Server
	control  *control.Server
	usage    *webhook.UsageHook
	serverOn bool
}

// newApplication opens the store and builds the command handler and the
// listeners. Nothing listens until start.
func newApplication(cfg *config.Config, sess *discordgo.Session, listenAddr string) (*application, error) {
	publicKey, err := cfg.Ed25519PublicKey()
	if err != nil {
		return nil, err
	}
	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}

	store := storage.NewStore(cfg.DBPath)
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("initialize SQLite store: %w", err)
	}
	log.DatabaseLogger().Info("🗄️ SQLite store ready", "path", cfg.DBPath)

	tiktokOpts := tt.Options{
		APIKey:        cfg.TikTokAPIKey,
		BaseURL:       cfg.TikTokAPIBase,
		CacheTTL:      cfg.TikTokCacheTTL,
		RatePerSecond: cfg.TikTokRatePerSecond,
	}
	if cfg.TikTokCreateShortURLs {
		tiktokOpts.ShortLinks = store
		tiktokOpts.WebBaseURL = cfg.WebBaseURL
	}

	deps := commands.Dependencies{
		Store:      store,
		TikTok:     tt.NewClient(tiktokOpts),
		Premium:    premium.NewGate(store, cfg.WebBaseURL),
		WebBaseURL: cfg.WebBaseURL,
	}
	if cfg.APIToken != "" {
		deps.ShortURLs = tt.NewShortURLClient(cfg.APIBaseURL, cfg.APIToken, nil, tt.RetryOptions{})
	} else {
		log.ApplicationLogger().Info("QUICKVIDS_API_TOKEN not set; converting through the detail API")
	}
	usage, err := webhook.NewUsageHook(sess, cfg.UsageHook)
	if err != nil {
		log.ApplicationLogger().Warn("Usage hook disabled", "err", err)
	}
	deps.Usage = usage

	a := &application{
		cfg:     cfg,
		session: sess,
		store:   store,
		handler: commands.NewCommandHandler(sess, cfg.AppID, deps),
		control: control.NewServer(cfg.ControlAddr, store, Version),
		usage:   usage,
	}
	a.server = server.New(server.Options{
		Addr:            listenAddr,
		PublicKey:       publicKey,
		Session:         sess,
		Dispatcher:      a,
		RedirectURL:     cfg.RedirectURL,
		ResponseTimeout: cfg.ResponseTimeout,
		RateLimit:       rate.Every(time.Second),
		RateBurst:       5,
		TrustedProxies:  proxies,
	})
	return a, nil
}

// Dispatch forwards to the command client once commands are set up.
// Interactions that arrive earlier are left unanswered.
func (a *application) Dispatch(req core.Request) {
	if c := a.handler.Client(); c != nil {
		c.Dispatch(req)
	}
}

func (a *application) start(ctx context.Context) error {
	if err := a.handler.SetupCommands(ctx, a.cfg.Dev); err != nil {
		return fmt.Errorf("configure slash commands: %w", err)
	}
	log.ApplicationLogger().Info("🔗 Slash commands sync completed", "compare_only", a.cfg.Dev)

	if a.usage != nil {
		if err := a.usage.Validate(ctx); err != nil {
			log.ApplicationLogger().Warn("Usage hook failed validation; events may be lost", "err", err)
		}
	}

	if err := a.server.Start(); err != nil {
		return err
	}
	a.serverOn = true
	if err := a.control.Start(); err != nil {
		return err
	}
	return nil
}

// stop shuts the listeners down before closing the store so in-flight
// handlers can finish their writes.
func (a *application) stop(ctx context.Context) {
	if a.serverOn {
		if err := a.server.Stop(ctx); err != nil {
			log.ErrorLoggerRaw().Error("Interactions server failed to stop cleanly", "err", err)
		}
	}
	if err := a.control.Stop(ctx); err != nil {
		log.ErrorLoggerRaw().Error("Control server failed to stop cleanly", "err", err)
	}
	a.usage.Close()
	if err := a.store.Close(); err != nil {
		log.ErrorLoggerRaw().Error("Failed to close store", "err", err)
	}
}
