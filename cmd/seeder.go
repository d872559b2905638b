package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-gateway/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the test merchant",
	Long:  `Upsert the well-known test merchant so the checkout and the API can be tried out immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		lg := logger.LoggerWrapper()

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		gormDB, err := openGorm(db.DB, lg)
		if err != nil {
			return err
		}

		// seeding never enqueues, so no queue backend is needed
		services := newServices(cfg, gormDB, nil, lg)
		m, err := services.Auth.SeedTestMerchant(context.Background())
		if err != nil {
			return err
		}

		fmt.Println("Seeded test merchant:", m.Email)
		fmt.Println("  id:        ", m.ID)
		fmt.Println("  api_key:   ", m.APIKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
