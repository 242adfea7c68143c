package memstore

// A datafile holds one collection as an append-only sequence of BSON
// documents. Every save appends the full record, every delete appends a
// deletion marker, and loading replays the file so the last entry per id
// wins. Compaction rewrites the file with only the live records.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/kgroat/camouflage/src/helpers"
	"github.com/kgroat/camouflage/src/models"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	datafileExt   = ".db"
	deletedMarker = "$$deleted"
	lockRetry     = 20 * time.Millisecond
)

type datafile struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	logger      *zap.SugaredLogger

	// entries appended since the last compaction
	appended int
}

func newDatafile(dataDir, collection string, lockTimeout time.Duration, logger *zap.SugaredLogger) *datafile {
	path := filepath.Join(dataDir, collection+datafileExt)
	return &datafile{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// withLock holds the cross process file lock while fn runs.
func (f *datafile) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.lockTimeout)
	defer cancel()

	locked, err := f.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("failed to lock datafile %s: %w", f.path, err)
	}
	if !locked {
		return fmt.Errorf("timed out locking datafile %s", f.path)
	}
	defer f.lock.Unlock()

	return fn()
}

// load replays the datafile. A missing or empty file is an empty collection.
func (f *datafile) load() ([]string, map[string]models.Record, error) {
	ids := []string{}
	records := make(map[string]models.Record)

	if !helpers.FileExists(f.path, f.logger) {
		return ids, records, nil
	}

	err := f.withLock(func() error {
		file, err := helpers.OpenDataFile(filepath.Dir(f.path), filepath.Base(f.path))
		if err != nil {
			return err
		}
		defer file.Close()

		stat, err := file.Stat()
		if err != nil {
			return fmt.Errorf("failed to get datafile stats: %w", err)
		}
		fileSize := int(stat.Size())
		if fileSize == 0 {
			return nil
		}

		data, err := unix.Mmap(int(file.Fd()), 0, fileSize, syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			return fmt.Errorf("failed to memory map datafile %s: %w", f.path, err)
		}
		defer unix.Munmap(data)

		offset := 0
		for offset < len(data) {
			size, err := helpers.BSONDocumentSize(data, offset)
			if err != nil {
				return fmt.Errorf("datafile %s: %w", f.path, err)
			}
			entry, err := helpers.DecodeBSON(data[offset : offset+size])
			if err != nil {
				return fmt.Errorf("datafile %s at offset %d: %w", f.path, offset, err)
			}
			offset += size
			f.appended++

			id, _ := entry["_id"].(string)
			if id == "" {
				continue
			}
			if deleted, _ := entry[deletedMarker].(bool); deleted {
				if _, ok := records[id]; ok {
					delete(records, id)
					ids = removeID(ids, id)
				}
				continue
			}
			if _, ok := records[id]; !ok {
				ids = append(ids, id)
			}
			records[id] = models.Record(entry)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	f.logger.Debugw("Loaded datafile",
		"path", f.path,
		"records", len(ids),
		"entries", f.appended)

	return ids, records, nil
}

// append writes entries at the end of the datafile.
func (f *datafile) append(entries ...map[string]interface{}) error {
	if len(entries) == 0 {
		return nil
	}

	var buf []byte
	for _, entry := range entries {
		encoded, err := helpers.EncodeBSON(entry)
		if err != nil {
			return err
		}
		buf = append(buf, encoded...)
	}

	return f.withLock(func() error {
		file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("error opening datafile %s for append: %w", f.path, err)
		}
		defer file.Close()

		written, err := file.Write(buf)
		if err != nil {
			return fmt.Errorf("error writing to datafile %s: %w", f.path, err)
		}
		if written != len(buf) {
			return fmt.Errorf("error writing to datafile %s: wrote %d bytes, expected %d", f.path, written, len(buf))
		}
		f.appended += len(entries)
		return nil
	})
}

// rewrite replaces the datafile with the given live records.
func (f *datafile) rewrite(ids []string, records map[string]models.Record) error {
	var buf []byte
	for _, id := range ids {
		encoded, err := helpers.EncodeBSON(records[id])
		if err != nil {
			return err
		}
		buf = append(buf, encoded...)
	}

	return f.withLock(func() error {
		tmp := f.path + "~"
		if err := os.WriteFile(tmp, buf, 0644); err != nil {
			return fmt.Errorf("error writing compacted datafile %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, f.path); err != nil {
			return fmt.Errorf("error replacing datafile %s: %w", f.path, err)
		}
		f.logger.Infow("Compacted datafile",
			"path", f.path,
			"records", len(ids),
			"dropped", f.appended-len(ids))
		f.appended = len(ids)
		return nil
	})
}

func (f *datafile) remove() error {
	err := f.withLock(func() error {
		f.appended = 0
		return helpers.DeleteDataFile(f.path)
	})
	if err != nil {
		return err
	}
	return helpers.DeleteDataFile(f.path + ".lock")
}

func removeID(ids []string, id string) []string {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
