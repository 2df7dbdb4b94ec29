// Package cursor implements the durable scalar cursor: the last successfully
// finalized range's upper bound, read at the top of the driver loop and
// written only after a range's entire task set has joined.
package cursor

import (
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/histori/evm-token-indexer/internal/store"
)

// row 1 is the only cursor row this process ever reads or writes.
const singletonID uint8 = 1

// Store is the durable cursor, backed by the single-row "cursor" table.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Read returns the last-processed block, or 0 if no range has ever been
// committed.
func (s *Store) Read() (uint64, error) {
	var row store.Cursor
	err := s.db.Where("id = ?", singletonID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "cursor: read")
	}
	return row.LastProcessedBlock, nil
}

// Write atomically replaces the stored cursor value. It must be durable
// before the driver advances past this range — the write happens inside
// gorm's default auto-commit transaction per statement, which flushes to
// the storage engine's WAL/redo log before returning.
func (s *Store) Write(blockNumber uint64) error {
	row := store.Cursor{ID: singletonID, LastProcessedBlock: blockNumber}
	err := s.db.
		Where(store.Cursor{ID: singletonID}).
		Assign(store.Cursor{LastProcessedBlock: blockNumber}).
		FirstOrCreate(&row).Error
	if err != nil {
		return errors.Wrap(err, "cursor: write")
	}
	return nil
}
