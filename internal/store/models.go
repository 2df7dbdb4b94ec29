// Package store defines the gorm models for the relational schema and opens
// the database connection pool: a small package that owns connection setup
// and nothing else.
package store

import (
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
)

// Token is the one-shot metadata catalog row. Write-once: subsequent
// observations of the same address are no-ops.
type Token struct {
	Address        string `gorm:"primary_key;size:42"`
	FirstSeenBlock uint64 `gorm:"not null"`
	Standard       string `gorm:"size:8;not null"`
	Name           *string
	Symbol         *string
	Decimals       *uint16
	Granularity    *string `gorm:"size:100"`
}

func (Token) TableName() string { return "tokens" }

// TokenID is the per-token-id URI catalog row. TokenID is stored as a
// base-10 decimal string so the full uint256 range round-trips without
// truncation.
type TokenID struct {
	Address string  `gorm:"primary_key;size:42"`
	TokenID string  `gorm:"primary_key;size:100;column:token_id"`
	URI     *string `gorm:"size:2048"`
}

func (TokenID) TableName() string { return "token_ids" }

// BalanceRow is an append-only per-holder balance observation. The
// uniqueness constraint on (holder, address, token_id, block_number,
// log_index) is what makes a crash-replayed insert a no-op rather than a
// duplicate. TokenID is "not null" with an empty string standing in for
// "no token id" (fungible standards): SQL NULL is never equal to itself in
// a unique constraint, which would otherwise let every fungible-standard
// row bypass the idempotency guarantee entirely.
type BalanceRow struct {
	ID          uint64 `gorm:"primary_key;auto_increment"`
	Holder      string `gorm:"size:42;not null;unique_index:idx_balance_key"`
	Address     string `gorm:"size:42;not null;unique_index:idx_balance_key"`
	TokenID     string `gorm:"size:100;not null;unique_index:idx_balance_key"`
	Balance     string `gorm:"size:100;not null"`
	Standard    string `gorm:"size:8;not null"`
	BlockNumber uint64 `gorm:"not null;unique_index:idx_balance_key"`
	LogIndex    uint32 `gorm:"not null;unique_index:idx_balance_key"`
}

func (BalanceRow) TableName() string { return "balances" }

// AllowanceRow is an append-only per-(owner,spender) allowance observation.
// A TokenID of "" with a value of "0" or "1" denotes an operator-
// authorization marker row. Same uniqueness-constraint idempotency as
// BalanceRow, and the same not-null empty-string sentinel in place of NULL.
type AllowanceRow struct {
	ID          uint64 `gorm:"primary_key;auto_increment"`
	Owner       string `gorm:"size:42;not null;unique_index:idx_allowance_key"`
	Spender     string `gorm:"size:42;not null;unique_index:idx_allowance_key"`
	Address     string `gorm:"size:42;not null;unique_index:idx_allowance_key"`
	TokenID     string `gorm:"size:100;not null;unique_index:idx_allowance_key"`
	Allowance   string `gorm:"size:100;not null"`
	Standard    string `gorm:"size:8;not null"`
	BlockNumber uint64 `gorm:"not null;unique_index:idx_allowance_key"`
	LogIndex    uint32 `gorm:"not null;unique_index:idx_allowance_key"`
}

func (AllowanceRow) TableName() string { return "allowances" }

// SupplyRow is an append-only total-supply observation.
type SupplyRow struct {
	ID          uint64 `gorm:"primary_key;auto_increment"`
	Address     string `gorm:"size:42;not null;unique_index:idx_supply_key"`
	TotalSupply string `gorm:"size:100;not null"`
	BlockNumber uint64 `gorm:"not null;unique_index:idx_supply_key"`
	LogIndex    uint32 `gorm:"not null;unique_index:idx_supply_key"`
}

func (SupplyRow) TableName() string { return "token_supplies" }

// Cursor is the single-row durable scalar recording how far the pipeline
// has advanced.
type Cursor struct {
	ID                 uint8  `gorm:"primary_key"`
	LastProcessedBlock uint64 `gorm:"not null"`
}

func (Cursor) TableName() string { return "cursor" }

// Open establishes the gorm connection pool against databaseURL.
func Open(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open("mysql", databaseURL)
	if err != nil {
		return nil, err
	}
	db.DB().SetMaxOpenConns(32)
	db.DB().SetMaxIdleConns(8)
	return db, nil
}

// AutoMigrate creates or updates the schema for all models. Called once at
// startup, folded into the Go binary rather than a separate migration tool.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Token{},
		&TokenID{},
		&BalanceRow{},
		&AllowanceRow{},
		&SupplyRow{},
		&Cursor{},
	).Error
}
