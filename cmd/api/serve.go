package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"nftlend-backend/internal/adapter/benefit"
	httpadp "nftlend-backend/internal/adapter/http"
	"nftlend-backend/internal/adapter/middleware"
	"nftlend-backend/internal/adapter/oracle"
	"nftlend-backend/internal/adapter/repository/mysql"
	"nftlend-backend/internal/config"
	"nftlend-backend/internal/infrastructure/cache"
	"nftlend-backend/internal/infrastructure/db"
	"nftlend-backend/internal/usecase/admin"
	"nftlend-backend/internal/usecase/collateral"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/internal/usecase/ledger"
	"nftlend-backend/internal/usecase/loan"
	"nftlend-backend/internal/usecase/proposal"
	"nftlend-backend/internal/usecase/vault"
)

const (
	protocolLockKey = "nftlend:lock:protocol"
	protocolLockTTL = 30 * time.Second
	benefitTimeout  = 5 * time.Second
)

type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := slog.Default()

	gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DSN(), db.LogLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	deps := map[string]httpadp.Pinger{"database": sqlDB}

	// Redis backs idempotency, the price oracle and the cross-process lock.
	// Without it the API still serves the engines behind an in-process mutex.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		if rdb, err = cache.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		deps["redis"] = redisPinger{rdb}
	}

	var lock guard.Locker = guard.NewMutexLocker()
	if cfg.DistributedLock {
		if rdb == nil {
			return errors.New("DISTRIBUTED_LOCK needs REDIS_ADDR")
		}
		lock = cache.NewRedisLock(rdb, protocolLockKey, protocolLockTTL)
	}

	params := cfg.Params()
	tx := mysql.NewGormUoW(gdb)

	adm := admin.NewUsecase(tx, lock)
	if _, err := adm.EnsureInitialized(ctx, cfg.Protocol.OwnerAddress()); err != nil {
		return fmt.Errorf("init admin: %w", err)
	}
	escrows := collateral.NewUsecase(tx, lock, params.Addresses, benefit.NewWebhookCaller(cfg.BenefitWebhooks, benefitTimeout))
	vaults := vault.NewUsecase(tx, lock, params.Addresses)
	loans := loan.NewUsecase(tx, lock, params, escrows, vaults)
	proposals := proposal.NewUsecase(tx, lock, params, loans)

	handlers := httpadp.Handlers{
		Health:     httpadp.NewHandler(deps),
		Proposals:  httpadp.NewProposalHandler(proposals),
		Loans:      httpadp.NewLoanHandler(loans),
		Collateral: httpadp.NewCollateralHandler(escrows),
		Vault:      httpadp.NewVaultHandler(vaults),
		Ledger:     httpadp.NewLedgerHandler(ledger.NewUsecase(tx, lock, params.Addresses)),
		Admin:      httpadp.NewAdminHandler(adm),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Recover(), middleware.RequestLog(log))
	if rdb != nil {
		handlers.Oracle = httpadp.NewOracleHandler(oracle.NewRedisOracle(rdb, cfg.OracleMaxAge), adm, loans)
		e.Use(middleware.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second))
	}
	httpadp.Register(e, handlers)

	addr := ":" + cfg.AppPort
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "db_driver", cfg.DBDriver, "distributed_lock", cfg.DistributedLock)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
