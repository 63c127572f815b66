package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/procura-hq/procura/internal/config"
	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/cache"
	"github.com/procura-hq/procura/internal/resource/store"
	"github.com/procura-hq/procura/internal/resource/template"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "System template commands",
	Long:  "Publish system schemas and reconcile tenant schemas against them",
}

var templateApplyCmd = &cobra.Command{
	Use:   "apply [resource-type]",
	Short: "Apply system templates to tenant schemas",
	Long: `Publish the current system schema for each resource type and reconcile
every tenant's custom schema against it: missing templated fields and
options are inserted, still-bound field metadata is refreshed, and
tenant-added fields, renames of detached fields, and ordering are left
untouched. The pass is idempotent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := newLogger(cfg.Logging.Level)
		defer log.Sync()

		types := resource.Types()
		if len(args) == 1 {
			t, err := resource.ParseType(args[0])
			if err != nil {
				return err
			}
			types = []resource.Type{t}
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		st := store.New(db, log)
		binder := template.NewBinder(log)
		ctx := cmd.Context()

		green := color.New(color.FgGreen)
		reconciled := 0
		for _, t := range types {
			system := template.SystemSchema(t)
			if err := st.SaveSchema(ctx, system); err != nil {
				return fmt.Errorf("failed to publish %s system schema: %w", t, err)
			}

			accounts, err := st.ListSchemaAccounts(ctx, t)
			if err != nil {
				return err
			}
			for _, accountID := range accounts {
				tenant, err := st.LoadSchema(ctx, accountID, t)
				if err != nil {
					return fmt.Errorf("failed to load %s schema for account %s: %w", t, accountID, err)
				}
				if !binder.Apply(system, tenant) {
					continue
				}
				if err := st.SaveSchema(ctx, tenant); err != nil {
					return fmt.Errorf("failed to save %s schema for account %s: %w", t, accountID, err)
				}
				reconciled++
			}
			invalidateSchemas(ctx, cfg, log, t)
			green.Printf("✓ %s: %d tenant schema(s) checked\n", t, len(accounts))
		}

		fmt.Printf("\nReconciled %d schema(s)\n", reconciled)
		return nil
	},
}

func init() {
	templateCmd.AddCommand(templateApplyCmd)
}

// invalidateSchemas drops cached schemas for a type. A missing or down Redis
// is not fatal: entries expire on their own.
func invalidateSchemas(ctx context.Context, cfg *config.Config, log *zap.Logger, t resource.Type) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	sc := cache.New(client, nil, 0, log)
	if err := sc.InvalidateType(ctx, t); err != nil {
		log.Warn("failed to invalidate cached schemas",
			zap.Stringer("resource_type", t), zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
