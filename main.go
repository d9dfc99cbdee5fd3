package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ptgott/one-paste/html"
	"github.com/ptgott/one-paste/paste"
	"github.com/ptgott/one-paste/plugin"
	"github.com/ptgott/one-paste/server"
	"github.com/ptgott/one-paste/storage"
	"github.com/ptgott/one-paste/userconfig"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Log with filename and line number. This writes to stderr, so it should
	// be thread safe.
	// https://github.com/rs/zerolog/blob/7ccd4c940bf8a02fcc5f10e5475f9d3daff04d57/log/log.go#L13
	log.Logger = log.With().Caller().Logger()

	configPath := flag.String(
		"config",
		"./config.yaml",
		"path to a JSON or YAML file containing your configuration",
	)
	level := flag.String(
		"level",
		"info",
		`log level: "info", "debug", or "warn"`,
	)
	printVersion := flag.Bool(
		"version",
		false,
		"print the version and exit",
	)
	flag.Parse()

	if *printVersion {
		fmt.Println(version)
		return
	}

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
		gin.SetMode(gin.ReleaseMode)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info().
		Str("configPath", *configPath).
		Str("version", version).
		Msg("starting the application")

	f, err := os.Open(*configPath)

	if err != nil {
		log.Error().
			Str("config-path", *configPath).
			Err(err).
			Msg("We can't open the application config file")
		os.Exit(1)
	}

	config, err := userconfig.Parse(f)
	f.Close()

	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem parsing your config")
		os.Exit(1)
	}

	checkedConfig, err := config.CheckAndSetDefaults()
	if err != nil {
		var ce *userconfig.ConfigError
		ev := log.Error().Err(err)
		if errors.As(err, &ce) {
			ev = ev.Str("section", ce.Section)
		}
		ev.Msg("Problem validating your config")
		os.Exit(1)
	}

	log.Info().Str("configPath", *configPath).Msg("successfully validated the config")

	if err := run(checkedConfig); err != nil {
		log.Error().Err(err).Msg("exiting with an error")
		os.Exit(1)
	}
	log.Info().Msg("exiting")
}

// run wires the storage engine, the paste store and the HTTP server
// together and blocks until SIGINT or SIGTERM.
func run(conf userconfig.Meta) error {
	logger := log.With().Str("component", "paste").Logger()

	db, err := storage.NewBadgerDB(
		&conf.Storage,
		paste.NewFilter(nil, logger),
	)
	if err != nil {
		return fmt.Errorf("can't open the database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("can't close the database")
		}
	}()

	slugs, err := conf.Slugs.Generator()
	if err != nil {
		return err
	}

	store, err := paste.New(db, paste.Options{
		Slugs:       slugs,
		DefaultTTL:  conf.Entries.DefaultTTL,
		DefaultLang: conf.Entries.DefaultLang,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	assets := plugin.NewManager(plugin.Base(), plugin.Prism(), plugin.Mermaid())
	pages, err := html.NewRenderer(html.RendererConfig{
		Hostname:   conf.Server.Address,
		Version:    version,
		URIPrefix:  conf.Server.URIPrefix,
		Assets:     assets,
		TTLMenu:    conf.Entries.TTLMenu,
		DefaultTTL: conf.Entries.DefaultTTL,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, &server.Deps{
		Server: conf.Server,
		Store:  store,
		Pages:  pages,
		Assets: assets,
	})
}
