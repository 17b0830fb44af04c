package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/logger"
	"freshmart/backend/internal/store"
	pgstore "freshmart/backend/internal/store/postgres"
)

const welcomeCredit = 50.0

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func main() {
	_ = godotenv.Load()
	logger.Setup(os.Getenv("LOG_LEVEL"), "console")

	app := &cli.App{
		Name:  "seed",
		Usage: "Manage the FreshMart database schema and demo data",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply schema migrations",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.BoolFlag{
						Name:  "down",
						Usage: "Roll back every migration instead",
					},
				},
				Action: runMigrate,
			},
			{
				Name:  "demo",
				Usage: "Load the demo catalog and one account per role",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.BoolFlag{
						Name:  "skip-migrate",
						Usage: "Assume the schema is already current",
					},
				},
				Action: runDemo,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
}

func runMigrate(c *cli.Context) error {
	if c.Bool("down") {
		return pgstore.MigrateDown(c.String("db-url"))
	}
	return pgstore.Migrate(c.String("db-url"))
}

func runDemo(c *cli.Context) error {
	databaseURL := c.String("db-url")
	if !c.Bool("skip-migrate") {
		if err := pgstore.Migrate(databaseURL); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(c.Context, time.Minute)
	defer cancel()

	repo, err := pgstore.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = repo.Close() }()

	now := time.Now().UTC()
	products, users := 0, 0
	for _, product := range store.DemoProducts(now) {
		if _, err := repo.CreateProduct(ctx, product); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
		products++
	}

	accounts, err := store.DemoUsers(now)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if err := repo.CreateUser(ctx, account); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return fmt.Errorf("seed user %s: %w", account.Username, err)
		}
		users++
	}

	balance, err := repo.WalletBalance(ctx, "customer")
	if err != nil {
		return err
	}
	if balance == 0 {
		if _, err := repo.ApplyWalletTransaction(ctx, domain.WalletTransaction{
			Username:  "customer",
			Type:      domain.WalletDeposit,
			Amount:    welcomeCredit,
			Reference: "welcome credit",
		}); err != nil {
			return fmt.Errorf("seed wallet: %w", err)
		}
	}

	log.Info().Int("products", products).Int("users", users).Msg("demo data loaded")
	return nil
}
