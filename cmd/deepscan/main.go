// Command deepscan runs the deep-scan orchestrator.
//
// Two modes:
//
//	deepscan -serve                      # expose the web-app bridge and wait for scan requests
//	deepscan -type username john_doe     # run one scan from the command line
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/osintkit/deepscan/pkg/authdetect"
	"github.com/osintkit/deepscan/pkg/backend"
	"github.com/osintkit/deepscan/pkg/bridge"
	"github.com/osintkit/deepscan/pkg/bus"
	"github.com/osintkit/deepscan/pkg/keepalive"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/profile"
	"github.com/osintkit/deepscan/pkg/scan"
	"github.com/osintkit/deepscan/pkg/settings"
	"github.com/osintkit/deepscan/pkg/tab"

	// Platform extractors register themselves on import.
	_ "github.com/osintkit/deepscan/pkg/extractor/facebook"
	_ "github.com/osintkit/deepscan/pkg/extractor/instagram"
	_ "github.com/osintkit/deepscan/pkg/extractor/linkedin"
	_ "github.com/osintkit/deepscan/pkg/extractor/x"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	serve := flag.Bool("serve", false, "serve the web-app bridge instead of running one scan")
	listen := flag.String("listen", "127.0.0.1:8790", "bridge listen address")
	origins := flag.String("origins", "", "comma-separated origin patterns allowed to connect to the bridge")
	idType := flag.String("type", "username", "identifier type: username, email, name, or phone")
	platformsFlag := flag.String("platforms", "facebook,instagram,linkedin,x", "comma-separated platforms to scan")
	apiURL := flag.String("api-url", "", "backend analyzer base URL (overrides the stored setting)")
	headless := flag.Bool("headless", false, "run the browser headless")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if !*serve && flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: deepscan [options] <identifier>")
		fmt.Fprintln(os.Stderr, "       deepscan -serve [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(logger, *serve, *listen, *origins, *idType, *platformsFlag, *apiURL, *headless, flag.Arg(0)); err != nil {
		logger.Error("deepscan failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, serve bool, listen, origins, idType, platformsFlag, apiURL string, headless bool, identifier string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := settings.New()
	if err != nil {
		logger.Warn("persistent settings unavailable, using in-memory store", "error", err)
		store = settings.NewMemory()
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close settings store", "error", err)
		}
	}()
	if apiURL != "" {
		store.Set(settings.KeyAPIURL, apiURL)
	}

	analyzer := backend.New(store.APIURL, backend.WithLogger(logger))

	chromeOpts := []tab.ChromeOption{tab.WithLogger(logger)}
	if headless {
		chromeOpts = append(chromeOpts, tab.WithHeadless())
	}
	chrome, err := tab.NewChrome(ctx, chromeOpts...)
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	defer chrome.Shutdown()

	hub := bus.NewHub(logger)
	detector := authdetect.New(
		authdetect.WithLogger(logger),
		authdetect.WithFallbackSources(authdetect.NewBrowserSource(logger)),
	)
	keeper := keepalive.New(analyzer.Health, keepalive.WithLogger(logger))

	engine := scan.New(chrome, hub,
		scan.WithLogger(logger),
		scan.WithBackend(analyzer),
		scan.WithKeepAlive(keeper),
		scan.WithDetector(detector),
	)
	defer engine.Close()

	dispatcher := bus.NewDispatcher(logger)
	engine.RegisterHandlers(dispatcher, store)

	if serve {
		return serveBridge(ctx, logger, dispatcher, hub, listen, origins)
	}
	return runOnce(ctx, logger, engine, hub, idType, platformsFlag, identifier)
}

func serveBridge(ctx context.Context, logger *slog.Logger, dispatcher *bus.Dispatcher, hub *bus.Hub, listen, origins string) error {
	var opts []bridge.Option
	opts = append(opts, bridge.WithLogger(logger))
	if origins != "" {
		opts = append(opts, bridge.WithAllowedOrigins(strings.Split(origins, ",")...))
	}
	relay := bridge.New(dispatcher, hub, opts...)
	defer relay.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", relay)

	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background()) //nolint:errcheck // best-effort shutdown
	}()

	logger.Info("bridge listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runOnce(ctx context.Context, logger *slog.Logger, engine *scan.Engine, hub *bus.Hub, idType, platformsFlag, identifier string) error {
	var platforms []platform.ID
	for _, p := range strings.Split(platformsFlag, ",") {
		platforms = append(platforms, platform.ID(strings.TrimSpace(p)))
	}

	events, cancel := hub.Subscribe(0)
	defer cancel()
	go func() {
		for ev := range events {
			logger.Info("scan event", "event", ev.Kind)
		}
	}()

	scanID, err := engine.Start(ctx, profile.IdentifierType(idType), identifier, platforms)
	if err != nil {
		return err
	}
	logger.Info("scan running", "scan_id", scanID)

	engine.Wait()

	result := engine.Status()
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
