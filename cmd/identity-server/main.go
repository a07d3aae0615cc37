// The identity server hosts user accounts, authentication and the
// valid-for-orders check consumed by the order server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // Postgres driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/cache"
	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/config"
	"github.com/poc/grpc-services/internal/identity"
	"github.com/poc/grpc-services/internal/interceptor"
	"github.com/poc/grpc-services/pb"
)

func main() {
	configPath := flag.String("config", "configs/identity.yaml", "path to the YAML config")
	flag.Parse()

	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "identity")
	if err := run(*configPath, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, log *slog.Logger) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	clk := clock.Real{}

	codec, err := auth.NewCodec(cfg.JWT, clk)
	if err != nil {
		return err
	}

	var repo identity.Repository
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		repo = identity.NewPostgresRepository(db)
	} else {
		log.Warn("no database configured, using in-memory repository")
		repo = identity.NewMemoryRepository(clk)
	}

	var store cache.Store
	if cfg.Redis.Addr != "" {
		store = cache.NewRedis(cfg.Redis)
	} else {
		log.Warn("no redis configured, using in-process cache")
		store = cache.NewMemory(clk)
	}

	var svc *identity.Service
	vcache := cache.NewValidationCache(store, func(ctx context.Context, userID string) (bool, error) {
		return svc.ValidForOrder(ctx, userID)
	}, cfg.Cache.Validation.TTL, log)

	resolver := auth.NewResolver(identity.NewDirectory(repo, clk), clk)
	svc = identity.NewService(repo, codec, resolver, vcache, clk, cfg.JWT.Expiration(), log)

	policies := map[string]interceptor.Policy{
		pb.IdentityService_GetUser_FullMethodName: interceptor.SelfOrRole(func(req any) string {
			return req.(*pb.GetUserRequest).UserId
		}, "ROLE_ADMIN"),
		pb.IdentityService_UpdateUserProfile_FullMethodName: interceptor.SelfOrRole(func(req any) string {
			return req.(*pb.UpdateUserProfileRequest).UserId
		}, "ROLE_ADMIN"),
		pb.IdentityService_ValidateUser_FullMethodName: interceptor.Authenticated(),
	}
	excluded := cfg.Security.GRPC.ExcludedMethods
	if len(excluded) == 0 {
		excluded = []string{
			pb.IdentityService_CreateUser_FullMethodName,
			pb.IdentityService_AuthenticateUser_FullMethodName,
			pb.IdentityService_HealthCheck_FullMethodName,
		}
	}
	chain := interceptor.NewServerChain(
		interceptor.ServerMode(cfg.Security.GRPC.ServerMode),
		codec, resolver, excluded, policies, log,
	)

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(chain.Interceptors()...))
	pb.RegisterIdentityServiceServer(server, svc)

	return serve(server, cfg.Server, log)
}

// serve runs the gRPC listener plus the optional metrics endpoint and stops
// both on SIGINT/SIGTERM.
func serve(server *grpc.Server, cfg config.ServerConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics listener failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(lis) }()
	log.Info("server listening", "port", cfg.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	server.GracefulStop()
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	return nil
}
