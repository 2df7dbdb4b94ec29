package store

import (
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// OpenTest opens an in-memory sqlite database and migrates the schema,
// used by the test suites of every package that needs a *gorm.DB without a
// live MySQL instance. gorm's dialect abstraction is what makes this swap
// transparent to the code under test.
func OpenTest() (*gorm.DB, error) {
	db, err := gorm.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
