package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"regatta-live/src/helpers"
	"regatta-live/src/logger"
	"regatta-live/src/models"
)

// Key layout:
//
//	SNAPSHOT/<raceId>                              -> msgpack(MRaceSnapshot)
//	TRACK/<raceId>\x00<sortable t, 8 bytes><boatId> -> msgpack(MTrackPoint)
//
// The sortable t flips the sign bit so byte order equals numeric order, which
// makes a prefix scan return points ordered by t then boatId.
const (
	snapshotPrefix = "SNAPSHOT/"
	trackPrefix    = "TRACK/"
	memoryPath     = ":memory:"
)

// -----------------------------------------------------------------------------

type BadgerDB struct {
	Config *models.MConfig
	DB     *badger.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewBadgerDB(cfg *models.MConfig, log *logger.Logger) (*BadgerDB, error) {
	return &BadgerDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (b *BadgerDB) Initialize() error {
	path := b.Config.Storage.DBPath

	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == memoryPath {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	}
	opts = opts.WithBlockCacheSize(int64(helpers.RecommendedCacheMB()) << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger db at %s: %w", path, err)
	}
	b.DB = db
	return nil
}

// -----------------------------------------------------------------------------

func snapshotKey(raceID string) []byte {
	return []byte(snapshotPrefix + raceID)
}

func trackRacePrefix(raceID string) []byte {
	key := make([]byte, 0, len(trackPrefix)+len(raceID)+1)
	key = append(key, trackPrefix...)
	key = append(key, raceID...)
	return append(key, 0)
}

func sortableT(t int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t)^(1<<63))
	return buf
}

func trackKey(p models.MTrackPoint) []byte {
	key := trackRacePrefix(p.RaceID)
	key = append(key, sortableT(p.T)...)
	return append(key, p.BoatID...)
}

// tFromTrackKey extracts the timestamp of a TRACK key.
func tFromTrackKey(key []byte) (int64, bool) {
	rest := key[len(trackPrefix):]
	sep := bytes.IndexByte(rest, 0)
	if sep < 0 || len(rest) < sep+1+8 {
		return 0, false
	}
	raw := binary.BigEndian.Uint64(rest[sep+1 : sep+9])
	return int64(raw ^ (1 << 63)), true
}

// -----------------------------------------------------------------------------

func (b *BadgerDB) LoadSnapshot(ctx context.Context, raceID string) (*models.MRaceSnapshot, bool, error) {
	var snapshot models.MRaceSnapshot
	found := false

	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(raceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &snapshot)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot for %s: %w", raceID, err)
	}
	if !found {
		return nil, false, nil
	}
	return &snapshot, true, nil
}

// -----------------------------------------------------------------------------

func (b *BadgerDB) SaveSnapshot(ctx context.Context, raceID string, snapshot *models.MRaceSnapshot) error {
	buf, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return b.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(raceID), buf)
	})
}

// -----------------------------------------------------------------------------

func (b *BadgerDB) ListRaceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	prefix := []byte(snapshotPrefix)

	err := b.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}
	return ids, nil
}

// -----------------------------------------------------------------------------

func (b *BadgerDB) AppendTrackPoints(ctx context.Context, points []models.MTrackPoint) error {
	if len(points) == 0 {
		return nil
	}

	return b.DB.Update(func(txn *badger.Txn) error {
		for _, p := range points {
			key := trackKey(p)

			// Points are immutable: the first write for a key wins
			_, err := txn.Get(key)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			buf, err := msgpack.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to marshal track point: %w", err)
			}
			if err := txn.Set(key, buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

func (b *BadgerDB) ListTrackPoints(ctx context.Context, raceID string, from, to int64) ([]models.MTrackPoint, error) {
	var points []models.MTrackPoint
	prefix := trackRacePrefix(raceID)
	start := append(append([]byte{}, prefix...), sortableT(from)...)

	err := b.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			t, ok := tFromTrackKey(item.Key())
			if !ok {
				continue
			}
			if t > to {
				break
			}

			var p models.MTrackPoint
			if err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			points = append(points, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list track points for %s: %w", raceID, err)
	}
	return points, nil
}

// -----------------------------------------------------------------------------

func (b *BadgerDB) CleanupOldData() error {
	retentionDays := b.Config.Storage.RetentionDays
	if retentionDays <= 0 {
		return nil
	}
	cutoff := retentionCutoffMs(time.Now(), retentionDays)

	var expired [][]byte
	prefix := []byte(trackPrefix)
	err := b.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if t, ok := tFromTrackKey(key); ok && t < cutoff {
				expired = append(expired, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan expired track points: %w", err)
	}

	wb := b.DB.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range expired {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	b.Logger.Info("Cleanup completed, %d track points removed", len(expired))
	return nil
}

// -----------------------------------------------------------------------------

func (b *BadgerDB) Close() error {
	if b.DB == nil {
		return nil
	}
	if b.Config.Storage.DBPath != memoryPath {
		if err := b.DB.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			b.Logger.Warning("value log gc on close: %v", err)
		}
	}
	return b.DB.Close()
}
