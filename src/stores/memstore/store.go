// Package memstore is an embedded document store in the spirit of NeDB:
// collections live in memory and, when a data directory is configured, are
// persisted to one append-only BSON datafile per collection.
package memstore

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/kgroat/camouflage/src/helpers"
	"github.com/kgroat/camouflage/src/models"
	"github.com/kgroat/camouflage/src/settings"
	"go.uber.org/zap"
)

type collection struct {
	name     string
	ids      []string
	records  map[string]models.Record
	datafile *datafile
}

// Store implements models.Backend.
type Store struct {
	mu          sync.RWMutex
	opts        settings.Options
	logger      *zap.SugaredLogger
	collections map[string]*collection
	closed      bool
}

var _ models.Backend = (*Store)(nil)

// New creates a store. opts.DataDir empty keeps everything in memory.
func New(opts *settings.Options, logger *zap.SugaredLogger) (*Store, error) {
	if opts == nil {
		opts = settings.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	store := &Store{
		opts:        *opts,
		logger:      logger,
		collections: make(map[string]*collection),
	}

	if !opts.InMemory() {
		logger.Infow("Opening embedded store", "dataDir", opts.DataDir)
	}
	return store, nil
}

// collectionLocked returns the named collection, loading its datafile on
// first use. s.mu must be held for writing.
func (s *Store) collectionLocked(name string) (*collection, error) {
	if s.closed {
		return nil, models.ErrClosed
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	c := &collection{
		name:    name,
		ids:     []string{},
		records: make(map[string]models.Record),
	}
	if !s.opts.InMemory() {
		c.datafile = newDatafile(s.opts.DataDir, name, s.opts.LockTimeout, s.logger)
		ids, records, err := c.datafile.load()
		if err != nil {
			return nil, err
		}
		c.ids, c.records = ids, records
	}

	s.collections[name] = c
	return c, nil
}

// readCollection makes sure the collection is loaded and calls fn with the
// read lock held.
func (s *Store) readCollection(ctx context.Context, op, name string, fn func(c *collection) error) error {
	if err := ctx.Err(); err != nil {
		return models.NewBackendError(op, name, err)
	}

	s.mu.Lock()
	_, err := s.collectionLocked(name)
	s.mu.Unlock()
	if err != nil {
		return models.NewBackendError(op, name, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok || s.closed {
		return models.NewBackendError(op, name, models.ErrClosed)
	}
	return models.NewBackendError(op, name, fn(c))
}

func (s *Store) writeCollection(ctx context.Context, op, name string, fn func(c *collection) error) error {
	if err := ctx.Err(); err != nil {
		return models.NewBackendError(op, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collectionLocked(name)
	if err != nil {
		return models.NewBackendError(op, name, err)
	}
	return models.NewBackendError(op, name, fn(c))
}

// matching returns the ids of records matching query in insertion order.
func (c *collection) matching(query models.Query) ([]string, error) {
	var out []string
	for _, id := range c.ids {
		ok, err := Match(c.records[id], query)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// put and remove reach disk before memory, so a failed append leaves the
// collection untouched.
func (c *collection) put(rec models.Record) error {
	if c.datafile != nil {
		if err := c.datafile.append(rec); err != nil {
			return err
		}
	}
	id := rec["_id"].(string)
	if _, exists := c.records[id]; !exists {
		c.ids = append(c.ids, id)
	}
	c.records[id] = rec
	return nil
}

func (c *collection) remove(ids ...string) error {
	present := make([]string, 0, len(ids))
	markers := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		if _, ok := c.records[id]; !ok {
			continue
		}
		present = append(present, id)
		markers = append(markers, map[string]interface{}{"_id": id, deletedMarker: true})
	}
	if c.datafile != nil && len(markers) > 0 {
		if err := c.datafile.append(markers...); err != nil {
			return err
		}
	}
	for _, id := range present {
		delete(c.records, id)
		c.ids = removeID(c.ids, id)
	}
	return nil
}

// Save merges values into the record stored under id, creating it when
// needed. A nil id gets a fresh UUID.
func (s *Store) Save(ctx context.Context, collectionName string, id interface{}, values models.Record) (string, error) {
	var savedID string
	err := s.writeCollection(ctx, "save", collectionName, func(c *collection) error {
		switch v := id.(type) {
		case nil:
			savedID = helpers.GenerateUUID()
		case string:
			if v == "" {
				return models.ErrInvalidID
			}
			savedID = v
		default:
			return fmt.Errorf("%w: %T", models.ErrInvalidID, id)
		}

		rec, exists := c.records[savedID]
		if exists {
			rec = models.Record(helpers.CopyMap(rec))
		} else {
			rec = models.Record{}
		}
		for k, v := range values {
			if k == "_id" {
				continue
			}
			rec[k] = helpers.DeepCopy(v)
		}
		rec["_id"] = savedID

		if s.opts.Verbose {
			s.logger.Infow("Saving document",
				"collection", collectionName,
				"documentID", savedID,
				"insert", !exists)
		}
		return c.put(rec)
	})
	if err != nil {
		return "", err
	}
	return savedID, nil
}

func (s *Store) Delete(ctx context.Context, collectionName string, id interface{}) (int, error) {
	if id == nil {
		return 0, nil
	}
	count := 0
	err := s.writeCollection(ctx, "delete", collectionName, func(c *collection) error {
		key := s.ToCanonicalID(id)
		if _, ok := c.records[key]; !ok {
			return nil
		}
		count = 1
		return c.remove(key)
	})
	return count, err
}

func (s *Store) DeleteOne(ctx context.Context, collectionName string, query models.Query) (int, error) {
	return s.deleteMatching(ctx, "deleteOne", collectionName, query, 1)
}

func (s *Store) DeleteMany(ctx context.Context, collectionName string, query models.Query) (int, error) {
	return s.deleteMatching(ctx, "deleteMany", collectionName, query, 0)
}

func (s *Store) FindOneAndDelete(ctx context.Context, collectionName string, query models.Query) (int, error) {
	return s.deleteMatching(ctx, "findOneAndDelete", collectionName, query, 1)
}

func (s *Store) deleteMatching(ctx context.Context, op, collectionName string, query models.Query, limit int) (int, error) {
	count := 0
	err := s.writeCollection(ctx, op, collectionName, func(c *collection) error {
		ids, err := c.matching(query)
		if err != nil {
			return err
		}
		if limit > 0 && len(ids) > limit {
			ids = ids[:limit]
		}
		count = len(ids)
		return c.remove(ids...)
	})
	return count, err
}

func (s *Store) LoadByID(ctx context.Context, collectionName string, id interface{}) (models.Record, error) {
	if id == nil {
		return nil, nil
	}
	var out models.Record
	err := s.readCollection(ctx, "loadById", collectionName, func(c *collection) error {
		if rec, ok := c.records[s.ToCanonicalID(id)]; ok {
			out = models.Record(helpers.CopyMap(rec))
		}
		return nil
	})
	return out, err
}

func (s *Store) LoadOne(ctx context.Context, collectionName string, query models.Query, opts models.FindOptions) (models.Record, error) {
	opts.Limit = 1
	recs, err := s.find(ctx, "loadOne", collectionName, query, opts)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (s *Store) LoadMany(ctx context.Context, collectionName string, query models.Query, opts models.FindOptions) ([]models.Record, error) {
	return s.find(ctx, "loadMany", collectionName, query, opts)
}

func (s *Store) find(ctx context.Context, op, collectionName string, query models.Query, opts models.FindOptions) ([]models.Record, error) {
	var out []models.Record
	err := s.readCollection(ctx, op, collectionName, func(c *collection) error {
		ids, err := c.matching(query)
		if err != nil {
			return err
		}

		matched := make([]map[string]interface{}, len(ids))
		for i, id := range ids {
			matched[i] = c.records[id]
		}
		helpers.SortRecords(matched, opts.Sort)

		if opts.Skip > 0 {
			if opts.Skip >= len(matched) {
				matched = nil
			} else {
				matched = matched[opts.Skip:]
			}
		}
		if opts.Limit > 0 && len(matched) > opts.Limit {
			matched = matched[:opts.Limit]
		}

		out = make([]models.Record, len(matched))
		for i, rec := range matched {
			out[i] = models.Record(helpers.CopyMap(rec))
		}
		return nil
	})
	return out, err
}

func (s *Store) Count(ctx context.Context, collectionName string, query models.Query) (int, error) {
	count := 0
	err := s.readCollection(ctx, "count", collectionName, func(c *collection) error {
		ids, err := c.matching(query)
		count = len(ids)
		return err
	})
	return count, err
}

// FindOneAndUpdate sets values on the first match. With Upsert and no
// match, a record built from the query's plain equality fields and values
// is inserted.
func (s *Store) FindOneAndUpdate(ctx context.Context, collectionName string, query models.Query, values models.Record, opts models.UpdateOptions) (models.Record, error) {
	var out models.Record
	err := s.writeCollection(ctx, "findOneAndUpdate", collectionName, func(c *collection) error {
		ids, err := c.matching(query)
		if err != nil {
			return err
		}

		var rec models.Record
		switch {
		case len(ids) > 0:
			rec = models.Record(helpers.CopyMap(c.records[ids[0]]))
		case opts.Upsert:
			rec = models.Record{}
			for k, v := range query {
				if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
					continue
				}
				if _, isOp := operatorMap(v); isOp {
					continue
				}
				rec[k] = helpers.DeepCopy(v)
			}
			if _, ok := rec["_id"].(string); !ok {
				rec["_id"] = helpers.GenerateUUID()
			}
		default:
			return nil
		}

		for k, v := range values {
			if k == "_id" {
				continue
			}
			rec[k] = helpers.DeepCopy(v)
		}
		if err := c.put(rec); err != nil {
			return err
		}
		out = models.Record(helpers.CopyMap(rec))
		return nil
	})
	return out, err
}

func (s *Store) NativeIDType() reflect.Type {
	return reflect.TypeOf("")
}

// IsNativeID accepts UUID strings, the ids this store hands out.
func (s *Store) IsNativeID(value interface{}) bool {
	id, ok := value.(string)
	return ok && helpers.IsUUID(id)
}

func (s *Store) ToCanonicalID(id interface{}) string {
	if str, ok := id.(string); ok {
		return str
	}
	return fmt.Sprint(id)
}

func (s *Store) NativeID(canonical string) interface{} {
	return canonical
}

// Compact rewrites every loaded datafile without superseded entries.
func (s *Store) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return models.NewBackendError("compact", "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked()
}

func (s *Store) compactLocked() error {
	for name, c := range s.collections {
		if c.datafile == nil {
			continue
		}
		if err := c.datafile.rewrite(c.ids, c.records); err != nil {
			return models.NewBackendError("compact", name, err)
		}
	}
	return nil
}

// Close compacts datafiles when AutoCompact is set. Later calls fail with
// models.ErrClosed.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var err error
	if s.opts.AutoCompact {
		err = s.compactLocked()
	}
	s.closed = true
	s.collections = make(map[string]*collection)
	return err
}

// DropDatabase removes every collection and every datafile in the data
// directory.
func (s *Store) DropDatabase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return models.NewBackendError("dropDatabase", "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.NewBackendError("dropDatabase", "", models.ErrClosed)
	}

	for name, c := range s.collections {
		if c.datafile != nil {
			if err := c.datafile.remove(); err != nil {
				return models.NewBackendError("dropDatabase", name, err)
			}
		}
	}
	s.collections = make(map[string]*collection)

	if s.opts.DataDir != "" {
		// collections persisted earlier but never loaded by this store
		paths, err := filepath.Glob(filepath.Join(s.opts.DataDir, "*"+datafileExt))
		if err != nil {
			return models.NewBackendError("dropDatabase", "", err)
		}
		for _, path := range paths {
			name := strings.TrimSuffix(filepath.Base(path), datafileExt)
			if err := newDatafile(s.opts.DataDir, name, s.opts.LockTimeout, s.logger).remove(); err != nil {
				return models.NewBackendError("dropDatabase", name, err)
			}
		}
	}
	s.logger.Infow("Dropped embedded database", "dataDir", s.opts.DataDir)
	return nil
}

func (s *Store) ClearCollection(ctx context.Context, collectionName string) error {
	return s.writeCollection(ctx, "clearCollection", collectionName, func(c *collection) error {
		c.ids = []string{}
		c.records = make(map[string]models.Record)
		if c.datafile != nil {
			return c.datafile.remove()
		}
		return nil
	})
}
