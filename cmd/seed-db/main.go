package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Image         string          `json:"image"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	DiscountTiers []struct {
		MinQuantity int             `json:"minQuantity"`
		Percentage  decimal.Decimal `json:"discountPercentage"`
	} `json:"discountTiers"`
}

type options struct {
	databaseURL   string
	productsFile  string
	adminEmail    string
	adminPassword string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or STOREFRONT_DATABASE_URL / DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzip-compressed (.gz)")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@storefront.local", "email of the seeded admin account")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin password (or STOREFRONT_SEED_ADMIN_PASSWORD env); empty skips the admin")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	for _, env := range []string{"STOREFRONT_DATABASE_URL", "DATABASE_URL"} {
		if opts.databaseURL == "" {
			opts.databaseURL = os.Getenv(env)
		}
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.adminPassword == "" {
		opts.adminPassword = os.Getenv("STOREFRONT_SEED_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if opts.adminPassword == "" {
		lg.Warn("No admin password given, skipping admin account")
		return nil
	}
	return seedAdmin(ctx, lg, user.NewService(postgres.NewUserRepository(pool)), opts.adminEmail, opts.adminPassword)
}

// seedProducts inserts the products of the file, or overwrites them when they
// already exist, so the tool can run repeatedly.
func seedProducts(ctx context.Context, lg *zap.Logger, repo product.Repository, productsFile string) error {
	lg.Info("Reading products file", zap.String("path", productsFile))

	data, err := readFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	lg.Info("Upserting products", zap.Int("count", len(products)))
	now := time.Now().UTC()
	for _, pj := range products {
		p := &product.Product{
			ID:          pj.ID,
			Name:        pj.Name,
			Description: pj.Description,
			Category:    pj.Category,
			Image:       pj.Image,
			Price:       pj.Price,
			Stock:       pj.Stock,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for _, t := range pj.DiscountTiers {
			p.DiscountTiers = append(p.DiscountTiers, discount.Tier{MinQuantity: t.MinQuantity, Percentage: t.Percentage})
		}
		p.DiscountTiers = discount.Sorted(p.DiscountTiers)
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}

		existing, err := repo.GetByID(ctx, p.ID)
		switch {
		case errors.Is(err, product.ErrNotFound):
			err = repo.Create(ctx, p)
		case err == nil:
			p.CreatedAt = existing.CreatedAt
			p.Version = existing.Version
			err = repo.Update(ctx, p)
		}
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		lg.Info("Upserted product",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.Int("tiers", len(p.DiscountTiers)),
		)
	}
	return nil
}

// readFile reads path, transparently decompressing .gz files.
func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if !strings.HasSuffix(path, ".gz") {
		return io.ReadAll(f)
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()
	return io.ReadAll(gz)
}

func seedAdmin(ctx context.Context, lg *zap.Logger, users *user.Service, email, password string) error {
	u, err := users.Register(ctx, user.RegisterRequest{
		Name:     "Administrator",
		Email:    email,
		Password: password,
		Role:     user.RoleAdmin,
	})
	if errors.Is(err, user.ErrEmailTaken) {
		lg.Info("Admin account already exists", zap.String("email", email))
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "register admin")
	}
	lg.Info("Created admin account", zap.String("id", u.ID), zap.String("email", u.Email))
	return nil
}
