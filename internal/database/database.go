package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/autolead/internal/models"
)

// Connect opens the Postgres database, creating it first when missing, and migrates the schema.
func Connect(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if err := ensureDatabase(dsn); err != nil {
		return nil, fmt.Errorf("ensure database: %w", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("database ready")
	return conn, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.User{},
		&models.Quotation{},
		&models.VehicleListing{},
		&models.Car{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	return nil
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
