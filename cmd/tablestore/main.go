package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/tablestore/internal/config"
	"github.com/HerbHall/tablestore/internal/dialect"
	"github.com/HerbHall/tablestore/internal/server"
	"github.com/HerbHall/tablestore/internal/store"
	"github.com/HerbHall/tablestore/internal/tables"
	"github.com/HerbHall/tablestore/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("tablestore starting", zap.String("version", version.Short()))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	st, err := store.Open(dialect.Kind(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	ctx := context.Background()
	resources, err := buildResources(ctx, st, cfg.Tables, logger)
	if err != nil {
		logger.Fatal("failed to build repositories", zap.Error(err))
	}

	srv := server.New(cfg.Server.Addr(), resources, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("tablestore ready", zap.String("addr", cfg.Server.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// buildResources constructs a repository per declared table, creates missing
// tables, and syncs declared columns forward.
func buildResources(ctx context.Context, st *store.Store, tcs []config.TableConfig, logger *zap.Logger) (map[string]server.Resource, error) {
	resources := make(map[string]server.Resource, len(tcs))
	for _, tc := range tcs {
		cols := parseColumns(tc.Columns)

		switch tc.Mode {
		case "", "base":
			repo, err := tables.New(st, tables.Config{
				Table:       tc.Name,
				SoftDelete:  tc.SoftDelete,
				HasPriority: tc.HasPriority,
				Columns:     cols,
			}, logger)
			if err != nil {
				return nil, err
			}
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			if _, err := repo.SyncColumns(ctx); err != nil {
				return nil, err
			}
			resources[tc.Name] = server.BaseResource{Repo: repo}

		case "content":
			repo, err := tables.NewContent(st, tables.ContentConfig{
				Table:          tc.Name,
				SoftDelete:     tc.SoftDelete,
				HasPriority:    tc.HasPriority,
				SupportedTypes: tc.SupportedTypes,
			}, logger)
			if err != nil {
				return nil, err
			}
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			resources[tc.Name] = server.ContentResource{Repo: repo}

		case "cache":
			repo, err := tables.NewCache(st, tables.CacheConfig{Table: tc.Name, Columns: cols}, logger)
			if err != nil {
				return nil, err
			}
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			if _, err := repo.SyncColumns(ctx); err != nil {
				return nil, err
			}

		case "kv":
			repo, err := tables.NewKV(st, tables.KVConfig{
				Table:     tc.Name,
				ValueType: parseColumnType(tc.ValueType),
			}, logger)
			if err != nil {
				return nil, err
			}
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("table %q: unknown mode %q", tc.Name, tc.Mode)
		}
	}
	return resources, nil
}

func parseColumns(ccs []config.ColumnConfig) []dialect.Column {
	cols := make([]dialect.Column, len(ccs))
	for i, cc := range ccs {
		cols[i] = dialect.Column{
			Name:    cc.Name,
			Type:    parseColumnType(cc.Type),
			NotNull: cc.NotNull,
			Unique:  cc.Unique,
			Default: cc.Default,
		}
	}
	return cols
}

func parseColumnType(s string) dialect.ColumnType {
	switch s {
	case "int":
		return dialect.TypeInt
	case "bigint":
		return dialect.TypeBigInt
	case "float":
		return dialect.TypeFloat
	case "text":
		return dialect.TypeText
	case "bool":
		return dialect.TypeBool
	case "timestamp":
		return dialect.TypeTimestamp
	default:
		return dialect.TypeJSON
	}
}
