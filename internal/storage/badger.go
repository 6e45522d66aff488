package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"couponbot/internal/domain"
)

// BadgerRepository implements the Repository interface using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerRepository creates and initializes a new BadgerDB repository
// at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.WithField("path", dbPath).Info("BadgerDB opened")

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	return nil
}

// couponKey builds the storage key for a coupon record.
// Format: coupon:{barcode} — barcode uniqueness falls out of the key space.
func couponKey(barcode string) []byte {
	return []byte("coupon:" + barcode)
}

// processedKey builds the storage key for a handled chat message.
// Format: msg:{chatID}:{messageID}
func processedKey(ref domain.MessageRef) []byte {
	return []byte(fmt.Sprintf("msg:%d:%d", ref.ChatID, ref.MessageID))
}

var couponPrefix = []byte("coupon:")

// HasBarcode reports whether a record with the given barcode exists.
func (r *BadgerRepository) HasBarcode(ctx context.Context, barcode string) (bool, error) {
	var found bool
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(couponKey(barcode))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		r.log.WithError(err).WithField("barcode", barcode).Error("Failed to check barcode")
		return false, fmt.Errorf("failed to check barcode %s: %w", barcode, err)
	}
	return found, nil
}

// SaveBatch writes all records inside a single transaction so a batch is
// persisted entirely or not at all.
func (r *BadgerRepository) SaveBatch(ctx context.Context, records []domain.CouponRecord) error {
	if len(records) == 0 {
		return nil
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		for _, record := range records {
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal record %s: %w", record.Barcode, err)
			}
			if err := txn.SetEntry(badger.NewEntry(couponKey(record.Barcode), data)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).WithField("batch_size", len(records)).Error("Failed to save batch")
		return fmt.Errorf("failed to save batch of %d records: %w", len(records), err)
	}

	r.log.WithField("batch_size", len(records)).Info("Batch saved")
	return nil
}

// ListAll returns every coupon record, newest first.
func (r *BadgerRepository) ListAll(ctx context.Context) ([]domain.CouponRecord, error) {
	var records []domain.CouponRecord

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(couponPrefix); it.ValidForPrefix(couponPrefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var record domain.CouponRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return fmt.Errorf("failed to unmarshal record for key %s: %w", string(item.Key()), err)
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).Error("Failed to list records")
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// ListRecent returns the n newest records.
func (r *BadgerRepository) ListRecent(ctx context.Context, n int) ([]domain.CouponRecord, error) {
	records, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if n < len(records) {
		records = records[:n]
	}
	return records, nil
}

// ListByStore returns all records for one store tag, newest first.
func (r *BadgerRepository) ListByStore(ctx context.Context, store domain.Store) ([]domain.CouponRecord, error) {
	records, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var filtered []domain.CouponRecord
	for _, record := range records {
		if record.Store == store {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

// CountByStore aggregates record counts per store tag.
func (r *BadgerRepository) CountByStore(ctx context.Context) (map[domain.Store]int, error) {
	records, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Store]int)
	for _, record := range records {
		counts[record.Store]++
	}
	return counts, nil
}

// MarkProcessed stores a marker for the message and reports whether the
// message was seen for the first time. Calling it twice for the same
// message returns false the second time.
func (r *BadgerRepository) MarkProcessed(ctx context.Context, ref domain.MessageRef) (bool, error) {
	first := false
	err := r.db.Update(func(txn *badger.Txn) error {
		key := processedKey(ref)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		first = true
		return txn.SetEntry(badger.NewEntry(key, []byte{1}))
	})
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"chat_id":    ref.ChatID,
			"message_id": ref.MessageID,
		}).Error("Failed to mark message processed")
		return false, fmt.Errorf("failed to mark message %d processed: %w", ref.MessageID, err)
	}
	return first, nil
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
