// Package sqlstore persists entities as rows of gorm models. Field level updates only write the modified columns.
package sqlstore

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/iotaledger/entitycache/persist"
)

// ErrRecordNotFound is returned when an update or delete did not match a row.
var ErrRecordNotFound = errors.New("record not found")

// Storage implements persist.StorageAccess and persist.BatchStorageAccess on top of gorm.
// Record entities must be pointers to gorm models whose primary key is set.
type Storage struct {
	db *gorm.DB
}

// New creates a Storage on the given database.
func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

// Migrate creates or updates the tables of the given models.
func (s *Storage) Migrate(models ...any) error {
	return errors.Wrap(s.db.AutoMigrate(models...), "failed to migrate tables")
}

// Load reads the row of target, whose primary key must be set.
func (s *Storage) Load(ctx context.Context, target any) error {
	if err := s.db.WithContext(ctx).Take(target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRecordNotFound
		}

		return errors.Wrap(err, "failed to load record")
	}

	return nil
}

// Save inserts the entity.
func (s *Storage) Save(ctx context.Context, entityType string, record persist.Record) error {
	return s.SaveAll(ctx, entityType, []persist.Record{record})
}

// Update writes the modified columns of the entity, or all of them if the record carries none.
func (s *Storage) Update(ctx context.Context, entityType string, record persist.Record) error {
	return s.UpdateAll(ctx, entityType, []persist.Record{record})
}

// Delete removes the row of the entity.
func (s *Storage) Delete(ctx context.Context, entityType string, record persist.Record) error {
	return s.DeleteAll(ctx, entityType, []persist.Record{record})
}

// SaveAll inserts the entities in one transaction.
func (s *Storage) SaveAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.transaction(ctx, entityType, "save", records, func(tx *gorm.DB, record persist.Record) error {
		return tx.Create(record.Entity).Error
	})
}

// UpdateAll writes the entities in one transaction.
func (s *Storage) UpdateAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.transaction(ctx, entityType, "update", records, func(tx *gorm.DB, record persist.Record) error {
		if len(record.ModifiedFields) == 0 {
			return tx.Save(record.Entity).Error
		}

		result := tx.Model(record.Entity).Select(record.ModifiedFields).Updates(record.Entity)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.Wrapf(ErrRecordNotFound, "%s", record.Key)
		}

		return nil
	})
}

// DeleteAll removes the rows of the entities in one transaction.
func (s *Storage) DeleteAll(ctx context.Context, entityType string, records []persist.Record) error {
	return s.transaction(ctx, entityType, "delete", records, func(tx *gorm.DB, record persist.Record) error {
		return tx.Delete(record.Entity).Error
	})
}

func (s *Storage) transaction(ctx context.Context, entityType, operation string, records []persist.Record, apply func(tx *gorm.DB, record persist.Record) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			if err := apply(tx, record); err != nil {
				return errors.Wrapf(err, "%s#%s", entityType, record.Key)
			}
		}

		return nil
	})

	return errors.Wrapf(err, "failed to %s %d entities of %s", operation, len(records), entityType)
}

var (
	_ persist.StorageAccess      = &Storage{}
	_ persist.BatchStorageAccess = &Storage{}
)
