package db

import (
	"context"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/poscillo/poscillo/internal/config"
)

type Postgres struct {
	Pool *pgxpool.Pool
	DB   *sqlx.DB
}

// New applies migrations, then opens both connections the service uses:
// the pgx pool for the order store and the sqlx handle for the menu
// repository.
func New(cfg config.PostgresConfig) (*Postgres, error) {
	sqlxDB, err := sqlx.Connect("postgres", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("db: failed to connect to postgres: %w", err)
	}

	if err := applyMigrations(sqlxDB, cfg); err != nil {
		sqlxDB.Close()
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("db: failed to parse postgres connstr: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("db: failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		sqlxDB.Close()
		return nil, fmt.Errorf("db: failed to ping postgres: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Connected to PostgreSQL")
	return &Postgres{Pool: pool, DB: sqlxDB}, nil
}

func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
	if p.DB != nil {
		if err := p.DB.Close(); err != nil {
			log.Error().Err(err).Msg("db: failed to close sqlx connection")
		}
	}
	log.Info().Msg("Database connections closed")
}

func applyMigrations(sqlxDB *sqlx.DB, cfg config.PostgresConfig) error {
	driver, err := postgres.WithInstance(sqlxDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db: failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsPath, cfg.DBName, driver)
	if err != nil {
		return fmt.Errorf("db: failed to initialize migrations: %w", err)
	}

	err = m.Up()
	if err == migrate.ErrNoChange {
		log.Info().Msg("No new migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("db: failed to apply migrations: %w", err)
	}

	log.Info().Msg("Migrations applied")
	return nil
}
