// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/faye25tom/TGNexus/internal/cli"
	"github.com/faye25tom/TGNexus/internal/cli/envflag"
	"github.com/faye25tom/TGNexus/internal/config"
	"github.com/faye25tom/TGNexus/internal/digest"
	"github.com/faye25tom/TGNexus/internal/feed"
	"github.com/faye25tom/TGNexus/internal/generate"
	"github.com/faye25tom/TGNexus/internal/httplogger"
	"github.com/faye25tom/TGNexus/internal/logger"
	"github.com/faye25tom/TGNexus/internal/scheduler"
	"github.com/faye25tom/TGNexus/internal/store"
	"github.com/faye25tom/TGNexus/internal/syncx"
	"github.com/faye25tom/TGNexus/internal/systemd"
	"github.com/faye25tom/TGNexus/internal/telegram"
	"github.com/faye25tom/TGNexus/internal/trigger"
	"github.com/faye25tom/TGNexus/internal/web"
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()
	cli.Main(new(engine))
}

// Environment variables read by Run.
const (
	envTelegramSecret = "TELEGRAM_SECRET"
	envAdminToken     = "ADMIN_TOKEN"
	envDatabaseURL    = "DATABASE_URL"
)

const (
	logLineLimit  = 300
	httpTimeout   = 60 * time.Second
	digestsLimit  = 20
	backendSDK    = "sdk"
	scrubbedValue = "[EXPUNGED]"
)

type engine struct {
	init syncx.Lazy[error] // main initialization

	// initialized by doInit
	slog      *slog.Logger
	logStream logger.Streamer
	store     store.Store
	cfg       *config.Manager
	pipeline  *digest.Pipeline
	trigger   *trigger.Engine
	sched     *scheduler.Scheduler
	mux       *http.ServeMux

	chatMu   sync.Mutex
	chatCtx  context.Context    // lifetime of the inbound side
	chatStop context.CancelFunc // stops the current poller, if any
	chatDone chan struct{}      // closed when the current poller exits
	bot      *syncx.Protected[*telegram.Bot]

	secrets *syncx.Protected[*strings.Replacer] // see scrub

	genMu  sync.Mutex
	genCfg config.Gemini
	gen    *genHandle

	flags struct {
		addr, db, host *string
		timeout        *time.Duration
	}

	// configuration, read-only after initialization
	addr        string
	dbPath      string
	seedPath    string
	host        string
	verbose     bool
	timeout     time.Duration
	tgSecret    string
	adminToken  string
	databaseURL string
	getenv      func(string) string
	httpc       *http.Client
	stderr      io.Writer
	// for tests
	noServerStart bool
	ready         func() // see web.ListenAndServeConfig.Ready
	newSDKBackend func(ctx context.Context, apiKey string) (closingBackend, error)
}

func (e *engine) Flags(fs *flag.FlagSet) {
	getenv := e.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	e.flags.addr = envflag.Value("addr", "ADDR", "localhost:32025", "Listen on `host:port`.", fs, getenv)
	e.flags.db = envflag.Value("db", "DB_PATH", "data/bot.db", "Path to the SQLite `database`, or :memory:.", fs, getenv)
	e.flags.host = envflag.Value("host", "HOST", "", "Public `host` for the Telegram webhook. If empty, long polling is used.", fs, getenv)
	e.flags.timeout = envflag.Value("timeout", "TIMEOUT", 30*time.Second, "Timeout for feed and Gemini requests.", fs, getenv)
	fs.StringVar(&e.seedPath, "config", "", "Apply configuration sections from the YAML `file` at startup.")
	fs.BoolVar(&e.verbose, "verbose", false, "Enable debug logging.")
}

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	if e.flags.addr != nil {
		e.addr = *e.flags.addr
		e.dbPath = *e.flags.db
		e.host = *e.flags.host
		e.timeout = *e.flags.timeout
	}
	e.tgSecret = cmp.Or(e.tgSecret, env.Getenv(envTelegramSecret))
	e.adminToken = cmp.Or(e.adminToken, env.Getenv(envAdminToken))
	e.databaseURL = cmp.Or(e.databaseURL, env.Getenv(envDatabaseURL))
	e.getenv = env.Getenv
	e.stderr = env.Stderr

	if e.host != "" && e.tgSecret == "" {
		return fmt.Errorf("%w: %s must be set to receive webhooks on %s", cli.ErrInvalidArgs, envTelegramSecret, e.host)
	}

	if err := e.init.Get(func() error {
		return e.doInit(ctx)
	}); err != nil {
		return err
	}

	// Used in tests.
	if e.noServerStart {
		return nil
	}
	defer e.store.Close()

	snap := e.cfg.Snapshot(ctx)
	e.sched.Start(ctx)
	if err := e.sched.Schedule(snap.RSS.SummaryTime); err != nil {
		e.slog.Error("digest is not scheduled", "summary_time", snap.RSS.SummaryTime, "error", err)
	}
	e.startChat(ctx, snap.Telegram)
	go systemd.WatchdogLoop(ctx, e.slog)

	err := web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:       e.addr,
		Mux:        e.mux,
		Logger:     e.slog,
		Debuggable: true,
		DebugAuth:  e.authorized,
		Ready: func() {
			systemd.Notify(e.slog, systemd.Ready)
			if e.ready != nil {
				e.ready()
			}
		},
	})
	systemd.Notify(e.slog, systemd.Stopping)

	// Let an in-flight digest run and pending replies finish.
	<-e.sched.Stop().Done()
	e.stopChat()
	if b := e.bot.Load(); b != nil {
		b.Wait()
	}
	e.closeGenerator()
	return err
}

func (e *engine) doInit(ctx context.Context) error {
	if e.httpc == nil {
		// Generation and long polling both take a while.
		e.httpc = &http.Client{Timeout: httpTimeout}
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.getenv == nil {
		e.getenv = os.Getenv
	}
	if e.timeout <= 0 {
		e.timeout = 30 * time.Second
	}
	e.bot = syncx.Protect[*telegram.Bot](nil)
	e.secrets = syncx.Protect[*strings.Replacer](nil)

	e.logStream = logger.NewStreamer(logLineLimit)
	e.slog = logger.New(e.stderr, e.logStream, e.verbose)
	if e.verbose {
		e.httpc.Transport = httplogger.New(e.httpc.Transport, e.slog, e.scrub)
	}

	st, err := store.Open(ctx, e.dbPath, e.databaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	e.store = st
	e.cfg = config.NewManager(st, e.slog)

	if e.seedPath != "" {
		seed, err := config.LoadSeed(e.seedPath)
		if err != nil {
			return err
		}
		if err := e.cfg.ApplySeed(ctx, seed); err != nil {
			return fmt.Errorf("applying %s: %w", e.seedPath, err)
		}
	}
	if err := e.cfg.SeedFromEnv(ctx, e.getenv); err != nil {
		return fmt.Errorf("seeding configuration from environment: %w", err)
	}
	e.updateSecrets(ctx)

	e.pipeline = digest.NewPipeline(digest.PipelineConfig{
		Config:  e.cfg,
		Deps:    e,
		Archive: st,
		Logger:  e.slog.With("component", "digest"),
	})
	e.trigger = trigger.New(trigger.Config{
		Config:  e.cfg,
		Deps:    e,
		History: st,
		Logger:  e.slog.With("component", "trigger"),
	})
	e.sched = scheduler.New(scheduler.Config{
		Name:     "digest",
		Job:      e.pipeline.Run,
		Location: time.Local,
		Logger:   e.slog.With("component", "scheduler"),
	})
	e.cfg.Subscribe(e.onConfigChange)

	e.initRoutes()
	return nil
}

func (e *engine) onConfigChange(ctx context.Context, section string) {
	switch section {
	case config.SectionGemini:
		e.updateSecrets(ctx)
	case config.SectionRSS:
		at := e.cfg.Snapshot(ctx).RSS.SummaryTime
		if err := e.sched.Schedule(at); err != nil {
			e.slog.Error("rescheduling digest failed", "summary_time", at, "error", err)
		}
	case config.SectionTelegram:
		e.updateSecrets(ctx)
		e.chatMu.Lock()
		running := e.chatCtx != nil
		e.chatMu.Unlock()
		if running {
			e.restartChat(e.cfg.Snapshot(ctx).Telegram)
		}
	}
}

// scrubber replaces the given secrets, and the process secrets, in error
// messages.
func (e *engine) scrubber(secrets ...string) *strings.Replacer {
	var pairs []string
	for _, s := range append(secrets, e.tgSecret, e.adminToken) {
		if s != "" {
			pairs = append(pairs, s, scrubbedValue)
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return strings.NewReplacer(pairs...)
}

// updateSecrets rebuilds the replacer used by scrub from the stored
// configuration.
func (e *engine) updateSecrets(ctx context.Context) {
	snap := e.cfg.Snapshot(ctx)
	e.secrets.Swap(e.scrubber(snap.Telegram.BotToken, snap.Gemini.APIKey))
}

// scrub removes all known secrets from s.
func (e *engine) scrub(s string) string {
	if r := e.secrets.Load(); r != nil {
		return r.Replace(s)
	}
	return s
}

// Fetcher implements digest.Deps.
func (e *engine) Fetcher(snap config.Snapshot) digest.Fetcher {
	rule, err := feed.CompileRule(snap.Rules.Keep)
	if err != nil {
		// Stored rules are checked on update, so this only happens when the
		// database was edited by hand.
		e.slog.Error("ignoring invalid keep rule", "error", err)
		rule = nil
	}
	return feed.NewAggregator(feed.Config{
		HTTPClient: e.httpc,
		Timeout:    e.timeout,
		Rule:       rule,
		Logger:     e.slog.With("component", "feed"),
	})
}

func (e *engine) sender(tg config.Telegram) *telegram.Sender {
	return telegram.New(telegram.Config{
		ChatID:     tg.ChatID,
		Token:      tg.BotToken,
		HTTPClient: e.httpc,
		Scrubber:   e.scrubber(tg.BotToken),
		Logger:     e.slog.With("component", "telegram"),
	})
}

// Deliverer implements digest.Deps.
func (e *engine) Deliverer(tg config.Telegram) digest.Deliverer { return e.sender(tg) }

// Replier implements trigger.Deps.
func (e *engine) Replier(tg config.Telegram) trigger.Replier { return e.sender(tg) }

// startChat starts the inbound side for tg. It lives until ctx is done or
// stopChat is called.
func (e *engine) startChat(ctx context.Context, tg config.Telegram) {
	e.chatMu.Lock()
	e.chatCtx = ctx
	e.chatMu.Unlock()
	e.restartChat(tg)
}

func (e *engine) restartChat(tg config.Telegram) {
	e.chatMu.Lock()
	defer e.chatMu.Unlock()
	e.stopChatLocked()

	if tg.BotToken == "" {
		e.bot.Swap(nil)
		e.slog.Warn("telegram is not configured, not listening for messages")
		return
	}

	sender := e.sender(tg)
	l := e.slog.With("component", "bot")
	b := telegram.NewBot(telegram.BotConfig{
		Sender:  sender,
		Handler: e.trigger,
		Secret:  e.tgSecret,
		Status:  e.status,
		Logger:  l,
	})
	e.bot.Swap(b)

	if e.host != "" {
		url := "https://" + e.host + "/telegram"
		if err := sender.SetWebhook(e.chatCtx, url, e.tgSecret); err != nil {
			l.Error("setting webhook failed", "error", err)
			return
		}
		l.Info("webhook registered", "host", e.host)
		return
	}

	ctx, cancel := context.WithCancel(e.chatCtx)
	done := make(chan struct{})
	e.chatStop, e.chatDone = cancel, done
	p := telegram.NewPoller(telegram.PollerConfig{
		Sender:     sender,
		Bot:        b,
		HTTPClient: e.httpc,
		Logger:     l,
	})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			l.Error("polling stopped", "error", err)
		}
	}()
	l.Info("polling for updates")
}

func (e *engine) stopChat() {
	e.chatMu.Lock()
	defer e.chatMu.Unlock()
	e.stopChatLocked()
}

func (e *engine) stopChatLocked() {
	if e.chatStop == nil {
		return
	}
	e.chatStop()
	<-e.chatDone
	e.chatStop, e.chatDone = nil, nil
}

// status renders the reply to the /status command.
func (e *engine) status(ctx context.Context, chatID int64) string {
	snap := e.cfg.Snapshot(ctx)

	var sb strings.Builder
	sb.WriteString("📊 **Bot status**\n\n")
	sb.WriteString("🟢 Running\n")
	if snap.Gemini.APIKey != "" {
		fmt.Fprintf(&sb, "🤖 AI service: %s\n", cmp.Or(snap.Gemini.Model, generate.DefaultModel))
	} else {
		sb.WriteString("🤖 AI service: not configured\n")
	}
	fmt.Fprintf(&sb, "💬 Chat ID: %d\n", chatID)
	fmt.Fprintf(&sb, "📚 Feeds: %d\n", len(snap.RSS.Feeds))
	if next := e.sched.Next(); !next.IsZero() {
		fmt.Fprintf(&sb, "⏰ Next digest: %s\n", next.Format("2006-01-02 15:04"))
	}
	if last := e.pipeline.LastRun(); !last.Finished.IsZero() {
		result := "delivered"
		if last.Error != "" {
			result = "failed"
		}
		fmt.Fprintf(&sb, "📰 Last digest: %s, %s\n", last.Finished.Format("2006-01-02 15:04"), result)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
