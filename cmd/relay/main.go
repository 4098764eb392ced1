package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	httpapi "github.com/immxrtalbeast/huddle/internal/api/http"
	"github.com/immxrtalbeast/huddle/internal/config"
	"github.com/immxrtalbeast/huddle/internal/discovery"
	"github.com/immxrtalbeast/huddle/internal/repository"
	"github.com/immxrtalbeast/huddle/internal/service"
	"github.com/immxrtalbeast/huddle/lib/logger"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env, os.Stdout)

	roomService := service.NewRoomService(repository.NewInMemoryRoomRepository(), log)
	brokerService := service.NewBrokerService(repository.NewInMemoryPeerRepository(), log)

	socket := httpapi.SocketConfig{
		WriteWait:      cfg.Relay.WriteWait,
		PongWait:       cfg.Relay.PongWait,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		EventBuffer:    cfg.Relay.EventBuffer,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	roomController := httpapi.NewRoomController(roomService, socket, log)
	brokerController := httpapi.NewBrokerController(brokerService, socket, log)

	router := httpapi.SetupRouter(roomController, brokerController, cfg.HTTP.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting relay", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down relay")
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Discovery.Enabled {
		port, err := listenPort(cfg.HTTP.Address)
		if err != nil {
			log.Error("cannot announce relay", sl.Err(err))
			os.Exit(1)
		}
		g.Go(func() error {
			if err := discovery.Announce(gctx, cfg.Discovery.Instance, port, log); err != nil {
				log.Warn("mDNS announcement failed", sl.Err(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("relay stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("relay stopped")
}

func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}
