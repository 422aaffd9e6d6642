package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Statements run in order inside one migration transaction. The
// uuid-ossp extension must exist before any table defaults to
// uuid_generate_v4().
var createPaymentTablesStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		merchant_reference VARCHAR(64) NOT NULL,
		payment_id VARCHAR(100),
		state VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_method VARCHAR(30),
		phone_number VARCHAR(30),
		status_details TEXT,
		amount DECIMAL(20,2) NOT NULL,
		currency VARCHAR(3) NOT NULL,
		customer_email VARCHAR(255),
		customer_name VARCHAR(255),
		description TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMP WITH TIME ZONE
	)`,
	// The unique index on merchant_reference enforces the
	// one-transaction-per-reference invariant at creation time
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_transactions_merchant_reference
		ON payment_transactions (merchant_reference)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_transactions_deleted_at
		ON payment_transactions (deleted_at)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		merchant_reference VARCHAR(64),
		raw_data JSONB,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		processed_at TIMESTAMP WITH TIME ZONE,
		error TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
}

func createPaymentTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_payment_tables",
		Migrate: func(tx *gorm.DB) error {
			for _, stmt := range createPaymentTablesStatements {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Exec("DROP TABLE IF EXISTS webhook_events").Error; err != nil {
				return err
			}
			return tx.Exec("DROP TABLE IF EXISTS payment_transactions").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createPaymentTablesMigration())
}
