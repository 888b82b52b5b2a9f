package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/api"
	"vessel-racer/internal/config"
	"vessel-racer/internal/editor"
	"vessel-racer/internal/game"
	"vessel-racer/internal/input"
	"vessel-racer/internal/logging"
	"vessel-racer/internal/transport"
	"vessel-racer/internal/vessel"
)

func main() {
	configPath := flag.String("config", "", "config file (yaml or json)")
	serverURL := flag.String("server", "", "websocket url, overrides network.server_url")
	once := flag.Bool("once", false, "stop when the input script ends instead of looping it")
	flag.Parse()

	envErr := godotenv.Load(".env")

	appConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *serverURL != "" {
		appConfig.Network.ServerURL = *serverURL
	}
	logging.Setup(appConfig.Log.Level, appConfig.Log.Pretty)
	if envErr != nil {
		log.Debug().Msg("💡 No .env file found, using environment variables only")
	}

	if err := run(appConfig, !*once); err != nil {
		log.Fatal().Err(err).Msg("❌ Client stopped")
	}
	log.Info().Msg("👋 Goodbye!")
}

func run(appConfig config.AppConfig, loop bool) error {
	cat := vessel.DefaultCatalogue()
	if path := appConfig.Content.CatalogueFile; path != "" {
		var err error
		if cat, err = vessel.LoadCatalogue(path); err != nil {
			return err
		}
	}

	creation := editor.Demo()
	if path := appConfig.Content.CreationFile; path != "" {
		var err error
		if creation, err = editor.LoadCreation(path); err != nil {
			return err
		}
	}

	script, err := input.ParseScript(appConfig.Content.InputScript, loop)
	if err != nil {
		return err
	}

	engine := game.NewEngine(game.ConfigFrom(game.ModeClient, appConfig), cat)
	fatal := make(chan error, 1)
	engine.OnFatal = func(err error) { fatal <- err }
	engine.SetCreation(creation)
	engine.SetKeys(script)
	if err := engine.StartEventLog(appConfig.EventLog.Path); err != nil {
		log.Warn().Err(err).Msg("⚠️ Event log disabled")
	}
	defer engine.StopEventLog()

	// Build before connecting so a bad creation never reaches the server.
	if err := engine.EnterPlay(); err != nil {
		return err
	}
	id, _ := engine.UserVessel()
	log.Info().Str("vessel", id.String()).Int("blocks", len(creation.Objects)).Msg("🏗️ Vessel built")

	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Network.HandshakeTimeout+time.Second)
	conn, err := transport.Dial(ctx, appConfig.Network.ServerURL, transport.ClientConfigFrom(appConfig.Network))
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := engine.AttachConn(conn); err != nil {
		return err
	}
	log.Info().
		Str("server", appConfig.Network.ServerURL).
		Uint64("client_id", uint64(conn.ID())).
		Msg("🔗 Connected")

	debug := startDebug(appConfig.Debug)

	engine.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	scriptDone := time.NewTicker(250 * time.Millisecond)
	defer scriptDone.Stop()

	var runErr error
wait:
	for {
		select {
		case <-quit:
			break wait
		case err := <-fatal:
			runErr = err
			break wait
		case <-conn.Done():
			if err := conn.Err(); err != nil && !errors.Is(err, transport.ErrNotConnected) {
				runErr = fmt.Errorf("connection lost: %w", err)
			}
			log.Warn().Msg("🔌 Server closed the connection")
			break wait
		case <-scriptDone.C:
			if script.Done() {
				log.Info().Msg("🏁 Input script finished")
				break wait
			}
		}
	}

	log.Info().Msg("🛑 Shutting down...")
	engine.Stop()
	_ = conn.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = debug.Shutdown(ctx)
	return runErr
}

// startDebug runs the debug server only when it was moved off the server's
// default address, so a client and server can share a host.
func startDebug(cfg config.DebugConfig) *api.DebugServer {
	if cfg.ListenAddr == config.DefaultDebug().ListenAddr {
		return nil
	}
	return api.StartDebugServer(cfg)
}
