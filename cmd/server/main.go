package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/api"
	"vessel-racer/internal/archive"
	"vessel-racer/internal/config"
	"vessel-racer/internal/editor"
	"vessel-racer/internal/game"
	"vessel-racer/internal/logging"
	"vessel-racer/internal/transport"
	"vessel-racer/internal/vessel"
)

func main() {
	configPath := flag.String("config", "", "config file (yaml or json)")
	flag.Parse()

	// Load .env file from parent directory
	envErr := godotenv.Load("../.env")
	if envErr != nil {
		// Try current directory as fallback
		envErr = godotenv.Load(".env")
	}

	appConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(appConfig.Log.Level, appConfig.Log.Pretty)
	if envErr != nil {
		log.Info().Msg("💡 No .env file found, using environment variables only")
	}

	log.Info().Msg("🚀 ================================")
	log.Info().Msg("🚀  VESSEL RACER - SERVER")
	log.Info().Msg("🚀 ================================")

	if err := run(appConfig); err != nil {
		log.Fatal().Err(err).Msg("❌ Server stopped")
	}
	log.Info().Msg("👋 Goodbye!")
}

func run(appConfig config.AppConfig) error {
	cat, err := loadCatalogue(appConfig.Content.CatalogueFile)
	if err != nil {
		return err
	}

	engine := game.NewEngine(game.ConfigFrom(game.ModeServer, appConfig), cat)
	fatal := make(chan error, 1)
	engine.OnFatal = func(err error) { fatal <- err }

	hub := transport.NewHub(transport.ConfigFrom(appConfig.Server, appConfig.Network))
	if err := engine.AttachHub(hub); err != nil {
		return err
	}

	var reader api.ArchiveReader
	if path := appConfig.Archive.Path; path != "" {
		arch, err := archive.Open(path)
		if err != nil {
			return err
		}
		defer arch.Close()
		engine.SetArchive(arch)
		reader = arch
		log.Info().Str("path", path).Msg("🗄️ Vessel archive")
	}

	if err := engine.StartEventLog(appConfig.EventLog.Path); err != nil {
		log.Warn().Err(err).Msg("⚠️ Event log disabled")
	} else if appConfig.EventLog.Path != "" {
		log.Info().Str("path", appConfig.EventLog.Path).Msg("📝 Event log")
	}
	defer engine.StopEventLog()

	if appConfig.Server.LocalVessel {
		creation, err := loadCreation(appConfig.Content.CreationFile)
		if err != nil {
			return err
		}
		engine.SetCreation(creation)
		log.Info().Int("blocks", len(creation.Objects)).Msg("🏗️ Listen server vessel")
	}
	if err := engine.EnterPlay(); err != nil {
		return err
	}

	debug := api.StartDebugServer(appConfig.Debug)

	server := api.NewServer(engine, reader, hub)

	engine.Start()
	log.Info().
		Int("tps", appConfig.Server.TickRate).
		Int("max_clients", appConfig.Server.MaxClients).
		Msg("✅ Game engine started")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(fmt.Sprintf(":%d", appConfig.Server.Port))
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Info().Msg("✅ Server ready! Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-quit:
	case err := <-fatal:
		runErr = err
	case err := <-serveErr:
		runErr = err
	}

	log.Info().Msg("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = server.Shutdown(ctx)
	_ = debug.Shutdown(ctx)
	hub.Close()
	engine.Stop()
	return runErr
}

func loadCatalogue(path string) (*vessel.Catalogue, error) {
	if path == "" {
		return vessel.DefaultCatalogue(), nil
	}
	cat, err := vessel.LoadCatalogue(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("elements", cat.Len()).Msg("🧱 Element catalogue")
	return cat, nil
}

func loadCreation(path string) (editor.Creation, error) {
	if path == "" {
		return editor.Demo(), nil
	}
	return editor.LoadCreation(path)
}
