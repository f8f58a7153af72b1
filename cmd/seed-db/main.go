package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/repository"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedServices(ctx, pool); err != nil {
		return errors.Wrap(err, "seed services")
	}
	if err := seedCustomers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	return nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) error {
	services := []struct {
		name  string
		price decimal.Decimal
	}{
		{"Standard wash", decimal.RequireFromString("4.00")},
		{"Deep clean", decimal.RequireFromString("12.50")},
		{"Express delivery", decimal.RequireFromString("7.25")},
		{"Repair", decimal.RequireFromString("20.00")},
	}

	slog.Info("seeding services", slog.Int("count", len(services)))

	for _, s := range services {
		_, err := pool.Exec(ctx,
			`INSERT INTO services (service_name, service_price_per_unit)
			 SELECT $1, $2
			 WHERE NOT EXISTS (SELECT 1 FROM services WHERE service_name = $1)`,
			s.name, s.price,
		)
		if err != nil {
			return errors.Wrapf(err, "insert service %q", s.name)
		}
	}
	return nil
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	customers := []struct {
		name   string
		points int
	}{
		{"Alice Hoffman", 15},
		{"Bruno Keller", 5},
		{"Chen Wei", 120},
	}

	slog.Info("seeding customers", slog.Int("count", len(customers)))

	for _, c := range customers {
		_, err := pool.Exec(ctx,
			`INSERT INTO customers (customer_name, points)
			 SELECT $1, $2
			 WHERE NOT EXISTS (SELECT 1 FROM customers WHERE customer_name = $1)`,
			c.name, c.points,
		)
		if err != nil {
			return errors.Wrapf(err, "insert customer %q", c.name)
		}
	}
	return nil
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	discounts := []struct {
		kind           string
		amount         decimal.Decimal
		requiredPoints int
	}{
		{"percent", decimal.RequireFromString("10"), 10},
		{"fixed", decimal.RequireFromString("5.00"), 25},
	}

	slog.Info("seeding discounts", slog.Int("count", len(discounts)))

	for _, d := range discounts {
		_, err := pool.Exec(ctx,
			`INSERT INTO discounts (discount_type, amount, required_points)
			 SELECT $1, $2, $3
			 WHERE NOT EXISTS (
				SELECT 1 FROM discounts
				WHERE discount_type = $1 AND amount = $2 AND required_points = $3
			 )`,
			d.kind, d.amount, d.requiredPoints,
		)
		if err != nil {
			return errors.Wrapf(err, "insert %s discount", d.kind)
		}
	}
	return nil
}
