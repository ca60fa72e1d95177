// Command accfleetd runs the browser-session core of the account fleet
// admin panel: a registry of authenticated browser sessions, the account
// status probe, the headless/visible toggler and the proxy checker, exposed
// over a small HTTP facade.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/accfleet/accfleet/pkg/api"
	"github.com/accfleet/accfleet/pkg/browser"
	"github.com/accfleet/accfleet/pkg/config"
	"github.com/accfleet/accfleet/pkg/logging"
	"github.com/accfleet/accfleet/pkg/proxycheck"
)

const version = "0.1.0"

func main() {
	var (
		addr        = flag.String("addr", "", "listen address (overrides config)")
		configPath  = flag.String("config", "", "path to config file (default ~/.accfleet/config.json)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("accfleetd v%s\n", version)
		return
	}

	if err := run(*addr, *configPath); err != nil {
		log.Fatalf("accfleetd: %v", err)
	}
}

func run(addr, configPath string) error {
	if configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		configPath = p
	}
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		settings.ListenAddr = addr
	}

	logger, logErr := logging.NewLogger("accfleetd")
	if logErr != nil {
		log.Printf("file logging unavailable: %v", logErr)
	}
	defer logger.Close()

	runtime := browser.NewRuntime()
	if err := runtime.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := runtime.Stop(); err != nil {
			logger.Errorf("runtime stop: %v", err)
		}
	}()

	login := browser.NewLoginFlow(browser.LoginFlowConfig{
		SiteURL:    settings.SiteURL,
		SettleWait: settings.SettleWait(),
		SubmitWait: settings.SubmitWait(),
		VerifyWait: settings.SelectorWait(),
		Logger:     logger,
	})

	registry := browser.NewRegistry(browser.RegistryConfig{
		Factory: runtime.Factory(),
		Login:   login,
		Driver: browser.DriverConfig{
			UserAgent:      settings.UserAgent,
			ViewportWidth:  settings.ViewportWidth,
			ViewportHeight: settings.ViewportHeight,
			NavTimeout:     settings.NavTimeout(),
		},
		TeardownGrace: settings.TeardownGrace(),
		MaxSessions:   settings.MaxSessions,
		Logger:        logger,
	})

	probe := browser.NewStatusProbe(browser.ProbeConfig{
		ProfileURL: settings.ProfileURL(),
		NameWait:   settings.SelectorWait(),
		Logger:     logger,
	})

	checker := proxycheck.New(proxycheck.Config{
		ProbeURL: settings.ProxyProbeURL,
		Timeout:  settings.ProxyProbeTimeout(),
		Logger:   logger,
	})

	server := &http.Server{
		Addr:    settings.ListenAddr,
		Handler: api.NewServer(registry, probe, checker, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("listening on %s", settings.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Infof("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
		if err := registry.CloseAll(); err != nil {
			logger.Errorf("closing sessions: %v", err)
		}
		return nil
	})

	return g.Wait()
}
