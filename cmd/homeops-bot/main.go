package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/zinin/homeops-bot/internal/adguard"
	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/bot"
	"github.com/zinin/homeops-bot/internal/clash"
	"github.com/zinin/homeops-bot/internal/config"
	"github.com/zinin/homeops-bot/internal/devmode"
	"github.com/zinin/homeops-bot/internal/gemini"
	"github.com/zinin/homeops-bot/internal/handler"
	"github.com/zinin/homeops-bot/internal/ipmonitor"
	"github.com/zinin/homeops-bot/internal/logging"
	"github.com/zinin/homeops-bot/internal/paths"
	"github.com/zinin/homeops-bot/internal/remote"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/service"
	"github.com/zinin/homeops-bot/internal/session"
	"github.com/zinin/homeops-bot/internal/shell"
	"github.com/zinin/homeops-bot/internal/telegram"
	"github.com/zinin/homeops-bot/internal/tempmail"
	"github.com/zinin/homeops-bot/internal/wizard"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

const maxLogSize = 1024 * 1024

func main() {
	devFlag := flag.Bool("dev", false, "Run in development mode (simulated router)")
	configPath := flag.StringP("config", "c", "", "Config file (.json with comments, or .yaml)")
	envFile := flag.String("env-file", "", "Optional .env file with secrets")
	showVersion := flag.BoolP("version", "v", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("homeops-bot %s (%s, %s)\n", Version, Commit, BuildDate)
		return
	}

	p := paths.Default()
	if *devFlag {
		p = paths.DevPaths()
	}
	if *configPath != "" {
		p.ConfigPath = *configPath
	}
	if *envFile != "" {
		p.EnvFile = *envFile
	}

	if err := run(p, *devFlag); err != nil {
		fmt.Fprintf(os.Stderr, "homeops-bot: %v\n", err)
		os.Exit(1)
	}
}

// run wires everything and blocks until a signal arrives. Deferred cleanups
// run on every return, including startup failures.
func run(p paths.Paths, dev bool) error {
	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cfg, err := loadConfig(p)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slogger, logger, err := logging.NewSlogLogger(p.LogPath, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer logger.Close()
	slog.SetDefault(slogger)

	if cfg.LogLevel != "" {
		logger.SetLevel(cfg.LogLevel)
	}
	if dev {
		slog.Info("Running in DEVELOPMENT mode", "config", p.ConfigPath)
	}
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err != nil {
			slog.Warn("Unknown timezone, using system default", "timezone", cfg.Timezone, "error", err)
		} else {
			time.Local = loc
		}
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.StartRotation(ctx, maxLogSize, time.Minute)

	store, closeStore, err := permissionStore(cfg, p)
	if err != nil {
		slog.Error("Failed to open permission store", "error", err)
		return err
	}
	defer closeStore()
	gate := auth.NewGate(cfg.AdminID, store)

	executor, err := routerExecutor(cfg, dev)
	if err != nil {
		slog.Error("Failed to set up router access", "error", err)
		return err
	}

	api, err := bot.NewAPI(cfg.BotToken, cfg.TGBaseURL, cfg.TGProxy)
	if err != nil {
		slog.Error("Failed to connect to Telegram", "error", err)
		return err
	}
	slog.Info("Authorized", "username", api.Self.UserName)
	sender := telegram.NewSender(api)

	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	network := service.NewNetworkService(executor, cfg.IPMonitor.Interfaces)
	sessions := session.New()

	deps := &handler.Deps{
		Sender:   sender,
		Gate:     gate,
		Sessions: sessions,
		Wizards:  wizard.NewEngine(sessions),
		System:   service.NewSystemService(executor, cfg.OpenWrt.ScriptsDir),
		Firewall: service.NewFirewallService(executor),
		Network:  network,
		Logs:     service.NewLogService(executor),
		Mail:     tempmail.NewClient(tempmail.DefaultBaseURL, timeout),
		DevMode:  dev,
	}
	if cfg.OpenClash.APIURL != "" {
		deps.Clash = clash.NewClient(cfg.OpenClash.APIURL, cfg.OpenClash.Secret, timeout)
	}
	if cfg.AdGuard.URL != "" {
		deps.AdGuard = adguard.NewClient(adguard.Options{
			URL:        cfg.AdGuard.URL,
			User:       cfg.AdGuard.User,
			Password:   cfg.AdGuard.Password,
			Token:      cfg.AdGuard.Token,
			Timeout:    timeout,
			LeasesMode: cfg.AdGuard.LeasesMode,
			Router:     executor,
		})
	}
	if len(cfg.GeminiAPIKeys) > 0 {
		deps.AI = gemini.NewClient(cfg.GeminiAPIKeys, cfg.GeminiModels)
	}

	r := router.New(gate)
	handler.Register(r, deps)

	b := bot.New(api, gate, r, sender)
	if err := b.RegisterCommands(); err != nil {
		slog.Warn("Failed to register commands", "error", err)
	}

	if !dev {
		monitor := ipmonitor.New(network, sender, cfg.AdminID, p.IPHistoryPath)
		if err := monitor.Start(ctx, cfg.IPMonitor.Schedule); err != nil {
			slog.Warn("IP monitor not started", "error", err)
		}
	}

	slog.Info("HomeOps bot started", "version", Version, "commit", Commit)
	b.Run(ctx)
	slog.Info("Bot stopped")
	return nil
}

// loadConfig reads the .env file and the config file. A missing config file is fine
// when everything comes from the environment.
func loadConfig(p paths.Paths) (*config.Config, error) {
	if err := config.LoadEnvFile(p.EnvFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", p.EnvFile, err)
	}
	cfg, err := config.Load(p.ConfigPath)
	if os.IsNotExist(err) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func permissionStore(cfg *config.Config, p paths.Paths) (auth.Store, func(), error) {
	if cfg.Permissions.Backend == "redis" {
		rs, err := auth.NewRedisStore(cfg.Permissions.RedisURL, cfg.Permissions.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	}
	path := cfg.Permissions.Path
	if path == "" {
		path = p.PermissionsPath
	}
	return auth.NewFileStore(path), func() {}, nil
}

func routerExecutor(cfg *config.Config, dev bool) (service.RemoteExecutor, error) {
	if dev {
		return devmode.NewExecutor(), nil
	}
	if cfg.OpenWrt.Host == "" {
		slog.Info("openwrt.host is empty, running router commands locally")
		return shell.Local{}, nil
	}
	return remote.NewSSH(remote.Options{
		Host:       cfg.OpenWrt.Host,
		Port:       cfg.OpenWrt.Port,
		User:       cfg.OpenWrt.User,
		Password:   cfg.OpenWrt.Password,
		KeyFile:    cfg.OpenWrt.KeyFile,
		KnownHosts: cfg.OpenWrt.KnownHosts,
	})
}
