package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/fox-one/mixin-sdk-go/v2/mixinnet"
	"github.com/fox-one/treasury"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var cfg struct {
	configPath string
	dbPath     string
	memory     bool
	port       int
}

func init() {
	flag.StringVar(&cfg.configPath, "config", "treasury.toml", "config path")
	flag.StringVar(&cfg.dbPath, "db", "treasury.db", "database path")
	flag.BoolVar(&cfg.memory, "memory", false, "keep proposals in memory only")
	flag.IntVar(&cfg.port, "port", 3001, "http port")
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := loadServiceConfig(cfg.configPath)
	if err != nil {
		slog.Error("load config failed", slog.Any("err", err))
		return
	}

	var (
		store treasury.ProposalStore
		db    *badger.DB
	)

	if cfg.memory {
		store = treasury.NewMemoryStore()
	} else {
		db, err = badger.Open(badger.DefaultOptions(cfg.dbPath))
		if err != nil {
			slog.Error("open db failed", slog.Any("err", err))
			return
		}
		defer db.Close()

		bs, err := treasury.NewBadgerStore(db)
		if err != nil {
			slog.Error("open proposal store failed", slog.Any("err", err))
			return
		}
		defer bs.Close()

		store = bs
	}

	if conf.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer rdb.Close()

		store = treasury.WithLocker(store, treasury.NewRedisLocker(rdb, conf.Redis.Prefix, conf.LockTTL))
	}

	ledger, err := openLedger(conf)
	if err != nil {
		slog.Error("open ledger failed", slog.Any("err", err))
		return
	}

	var combiner treasury.SignatureCombiner = treasury.DemoCombiner{}
	if len(conf.OwnerKeys) > 0 {
		if combiner, err = treasury.NewApprovalCombiner(conf.OwnerKeys); err != nil {
			slog.Error("init approval combiner failed", slog.Any("err", err))
			return
		}
	}

	engine := treasury.NewEngine(conf.Registry, store, ledger, combiner, ledger).
		WithSubmitTimeout(conf.SubmitTimeout)

	slog.Info("treasury launch",
		"treasury", conf.Registry.TreasuryID(),
		"owners", len(conf.Registry.Owners()),
		"threshold", conf.Registry.Threshold(),
		"ledger", conf.Ledger.Kind,
	)

	svr := treasury.NewServer(engine, treasury.Config{
		JWTSecret: conf.Auth.JWTSecret,
		Balance:   ledger,
	})

	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.port),
		Handler: svr.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", slog.String("addr", s.Addr))
		if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	})

	if db != nil {
		g.Go(func() error {
			return runGC(ctx, db, time.Minute)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("treasury exit", slog.Any("err", err))
	}
}

type treasuryLedger interface {
	treasury.TransactionBuilder
	treasury.ExecutionSubmitter
	treasury.BalanceReader
}

func openLedger(conf serviceConfig) (treasuryLedger, error) {
	if conf.Ledger.Kind != ledgerMixin {
		return treasury.NewDemoLedger(conf.Registry.TreasuryID(), conf.DemoBalance), nil
	}

	b, err := os.ReadFile(conf.Ledger.Keystore)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	var keystore mixin.Keystore
	if err := json.Unmarshal(b, &keystore); err != nil {
		return nil, fmt.Errorf("decode keystore: %w", err)
	}

	client, err := mixin.NewFromKeystore(&keystore)
	if err != nil {
		return nil, fmt.Errorf("init mixin client: %w", err)
	}

	spendKey, err := mixinnet.KeyFromString(conf.Ledger.SpendKey)
	if err != nil {
		return nil, fmt.Errorf("parse spend key: %w", err)
	}

	return treasury.NewMixinLedger(client, spendKey, conf.Ledger.AssetID), nil
}

func runGC(ctx context.Context, db *badger.DB, dur time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dur):
			_ = db.RunValueLogGC(0.7)
		}
	}
}
