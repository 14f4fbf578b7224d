package main

import (
	"context"
	"flag"
	"fmt"
	golog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/nicolagi/emoji/emoji"
	"github.com/nicolagi/emoji/server"
	"github.com/nicolagi/emoji/storage"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/emoji/emojiserver.config")
	configFile := flag.String("config", defaultConfigFile, "location of configuration file")
	flag.Parse()

	config, err := loadConfig(*configFile)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Could not load configuration")
	}

	config.applyDefaultsForMissingProperties()

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	cleanup := redirectLogging(config)
	defer cleanup()

	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	if err := run(config); err != nil {
		log.WithField("err", err).Error("Exiting")
		cleanup()
		os.Exit(1)
	}
}

func run(config *config) error {
	buckets, err := config.buckets()
	if err != nil {
		return err
	}
	maxUpload, err := config.maxUpload()
	if err != nil {
		return err
	}
	ttl, err := config.cacheTTL()
	if err != nil {
		return err
	}
	passwordHash, err := config.passwordHash()
	if err != nil {
		return err
	}
	address, err := config.listenAddress()
	if err != nil {
		return err
	}

	blobs, err := newBlobStore(config)
	if err != nil {
		return err
	}
	index, closeIndex, err := newIndex(config)
	if err != nil {
		return err
	}
	defer closeIndex()

	svc, err := emoji.NewService(blobs, storage.NewCachedIndex(index, config.Cache.Capacity, ttl),
		emoji.WithBuckets(buckets),
		emoji.WithSentinel(config.Sentinel))
	if err != nil {
		return err
	}

	if config.InitOnStart {
		result, err := svc.Reconcile(context.Background())
		if err != nil {
			return fmt.Errorf("init on start: %w", err)
		}
		log.WithFields(log.Fields{
			"already": result.AlreadyInitialized,
			"created": len(result.Created),
			"skipped": len(result.Skipped),
		}).Info("Init on start")
	}

	opts := []server.Option{
		server.WithAddress(address),
		server.WithService(svc),
		server.WithCORSOrigin(config.CORSOrigin),
		server.WithMaxUpload(maxUpload),
	}
	if passwordHash != nil {
		opts = append(opts, server.WithBasicAuth(config.Auth.User, passwordHash))
	}
	srv, err := server.New(opts...)
	if err != nil {
		return err
	}
	if _, err := srv.Listen(); err != nil {
		return err
	}

	// Serve returns once Shutdown is called, letting the deferred clean-up
	// functions run.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.WithField("signal", sig).Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithField("err", err).Warn("Could not shut down the server cleanly")
		}
	}()

	return srv.Serve()
}

func redirectLogging(c *config) (cleanup func()) {
	golog.SetOutput(log.StandardLogger().Writer())
	if c.LogPath == "" {
		return func() {}
	}
	pathname := os.ExpandEnv(c.LogPath)
	logger := log.WithField("pathname", pathname)
	f, err := os.OpenFile(pathname, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		logger.WithField("err", err).Fatal("Could not open log file")
	}
	logger.Info("Lines after this one will be logged to a file")
	log.SetOutput(f)
	return func() {
		if err := f.Close(); err != nil {
			// Can't use the logger here!
			_, _ = fmt.Fprintf(os.Stderr, "Could not close log file cleanly %q: %v", pathname, err)
		}
	}
}
