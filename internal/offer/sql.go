package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// offerRow is the SQL layout of an offer. Expired rows are removed by
// SQLDirectory.Purge.
type offerRow struct {
	TransferID       string `gorm:"primaryKey;column:transfer_id"`
	ConnectionHandle string `gorm:"not null;column:connection_handle"`
	// Epoch seconds.
	ValidUntil int64 `gorm:"not null;index;column:valid_until"`
}

func (offerRow) TableName() string { return "offers" }

// SQLDirectory stores offers in a SQL database through gorm.
type SQLDirectory struct {
	db    *gorm.DB
	clock Clock
}

// OpenSQLite opens (and migrates) a SQLite database at path. ":memory:" is
// accepted for tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&offerRow{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func NewSQLDirectory(db *gorm.DB, clock Clock) *SQLDirectory {
	return &SQLDirectory{db: db, clock: clockOrReal(clock)}
}

func (d *SQLDirectory) Put(ctx context.Context, o Offer) error {
	if err := o.validate(); err != nil {
		return err
	}
	row := offerRow{
		TransferID:       o.TransferID,
		ConnectionHandle: o.ConnectionHandle,
		ValidUntil:       o.ValidUntil.Unix(),
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transfer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"connection_handle", "valid_until"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("sql upsert offer: %w", err)
	}
	return nil
}

func (d *SQLDirectory) Get(ctx context.Context, transferID string) (Offer, error) {
	var row offerRow
	err := d.db.WithContext(ctx).Where("transfer_id = ?", transferID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Offer{}, ErrNotFound
	}
	if err != nil {
		return Offer{}, fmt.Errorf("sql get offer: %w", err)
	}
	return live(Offer{
		TransferID:       row.TransferID,
		ConnectionHandle: row.ConnectionHandle,
		ValidUntil:       time.Unix(row.ValidUntil, 0),
	}, d.clock.Now())
}

// Purge deletes rows that expired before now and returns how many were
// removed. SQLite has no native TTL, so the server runs this periodically.
func (d *SQLDirectory) Purge(ctx context.Context) (int64, error) {
	res := d.db.WithContext(ctx).
		Where("valid_until <= ?", d.clock.Now().Unix()).
		Delete(&offerRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("sql purge offers: %w", res.Error)
	}
	return res.RowsAffected, nil
}
