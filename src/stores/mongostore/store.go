// Package mongostore implements models.Backend on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/kgroat/camouflage/src/helpers"
	"github.com/kgroat/camouflage/src/models"
	"github.com/kgroat/camouflage/src/settings"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	opts   settings.Options
	logger *zap.SugaredLogger
}

var _ models.Backend = (*Store)(nil)

// Connect dials opts.URL and pings the server before returning.
func Connect(ctx context.Context, opts *settings.Options, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URL))
	if err != nil {
		return nil, models.NewBackendError("connect", "", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, models.NewBackendError("connect", "", err)
	}

	logger.Infow("Connected to MongoDB", "database", opts.Database)
	return &Store{
		client: client,
		db:     client.Database(opts.Database),
		opts:   *opts,
		logger: logger,
	}, nil
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func decode(raw bson.M) models.Record {
	rec := models.Record(helpers.NormalizeMap(raw))
	if id, ok := rec["_id"]; ok {
		rec["_id"] = canonicalID(id)
	}
	return rec
}

// Save inserts when id is nil and otherwise upserts with $set semantics.
func (s *Store) Save(ctx context.Context, collectionName string, id interface{}, values models.Record) (string, error) {
	coll := s.collection(collectionName)

	if id == nil {
		doc := setDocument(values)
		res, err := coll.InsertOne(ctx, doc)
		if err != nil {
			return "", models.NewBackendError("save", collectionName, err)
		}
		return canonicalID(res.InsertedID), nil
	}

	native := toObjectID(id)
	_, err := coll.UpdateOne(ctx,
		bson.M{"_id": native},
		bson.M{"$set": setDocument(values)},
		options.Update().SetUpsert(true))
	if err != nil {
		return "", models.NewBackendError("save", collectionName, err)
	}
	if s.opts.Verbose {
		s.logger.Infow("Saved document", "collection", collectionName, "documentID", canonicalID(native))
	}
	return canonicalID(native), nil
}

func (s *Store) Delete(ctx context.Context, collectionName string, id interface{}) (int, error) {
	if id == nil {
		return 0, nil
	}
	res, err := s.collection(collectionName).DeleteOne(ctx, bson.M{"_id": toObjectID(id)})
	if err != nil {
		return 0, models.NewBackendError("delete", collectionName, err)
	}
	return int(res.DeletedCount), nil
}

func (s *Store) DeleteOne(ctx context.Context, collectionName string, query models.Query) (int, error) {
	res, err := s.collection(collectionName).DeleteOne(ctx, castQuery(query))
	if err != nil {
		return 0, models.NewBackendError("deleteOne", collectionName, err)
	}
	return int(res.DeletedCount), nil
}

func (s *Store) DeleteMany(ctx context.Context, collectionName string, query models.Query) (int, error) {
	res, err := s.collection(collectionName).DeleteMany(ctx, castQuery(query))
	if err != nil {
		return 0, models.NewBackendError("deleteMany", collectionName, err)
	}
	return int(res.DeletedCount), nil
}

func (s *Store) LoadByID(ctx context.Context, collectionName string, id interface{}) (models.Record, error) {
	if id == nil {
		return nil, nil
	}
	return s.findOne(ctx, "loadById", collectionName, bson.M{"_id": toObjectID(id)}, options.FindOne())
}

func (s *Store) LoadOne(ctx context.Context, collectionName string, query models.Query, opts models.FindOptions) (models.Record, error) {
	findOpts := options.FindOne()
	if spec := sortSpec(opts.Sort); spec != nil {
		findOpts.SetSort(spec)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	return s.findOne(ctx, "loadOne", collectionName, castQuery(query), findOpts)
}

func (s *Store) findOne(ctx context.Context, op, collectionName string, filter bson.M, opts *options.FindOneOptions) (models.Record, error) {
	var raw bson.M
	err := s.collection(collectionName).FindOne(ctx, filter, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewBackendError(op, collectionName, err)
	}
	return decode(raw), nil
}

func (s *Store) LoadMany(ctx context.Context, collectionName string, query models.Query, opts models.FindOptions) ([]models.Record, error) {
	findOpts := options.Find()
	if spec := sortSpec(opts.Sort); spec != nil {
		findOpts.SetSort(spec)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.collection(collectionName).Find(ctx, castQuery(query), findOpts)
	if err != nil {
		return nil, models.NewBackendError("loadMany", collectionName, err)
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, models.NewBackendError("loadMany", collectionName, err)
	}

	out := make([]models.Record, len(raws))
	for i, raw := range raws {
		out[i] = decode(raw)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, collectionName string, query models.Query) (int, error) {
	n, err := s.collection(collectionName).CountDocuments(ctx, castQuery(query))
	if err != nil {
		return 0, models.NewBackendError("count", collectionName, err)
	}
	return int(n), nil
}

func (s *Store) FindOneAndUpdate(ctx context.Context, collectionName string, query models.Query, values models.Record, opts models.UpdateOptions) (models.Record, error) {
	updateOpts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetUpsert(opts.Upsert)

	var raw bson.M
	err := s.collection(collectionName).
		FindOneAndUpdate(ctx, castQuery(query), bson.M{"$set": setDocument(values)}, updateOpts).
		Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewBackendError("findOneAndUpdate", collectionName, err)
	}
	return decode(raw), nil
}

func (s *Store) FindOneAndDelete(ctx context.Context, collectionName string, query models.Query) (int, error) {
	err := s.collection(collectionName).FindOneAndDelete(ctx, castQuery(query)).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, models.NewBackendError("findOneAndDelete", collectionName, err)
	}
	return 1, nil
}

func (s *Store) NativeIDType() reflect.Type {
	return reflect.TypeOf(primitive.ObjectID{})
}

func (s *Store) IsNativeID(value interface{}) bool {
	switch v := value.(type) {
	case primitive.ObjectID:
		return true
	case *primitive.ObjectID:
		return v != nil
	case string:
		return primitive.IsValidObjectID(v)
	}
	return false
}

func (s *Store) ToCanonicalID(id interface{}) string {
	return canonicalID(id)
}

func (s *Store) NativeID(canonical string) interface{} {
	return toObjectID(canonical)
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return models.NewBackendError("close", "", err)
	}
	s.logger.Infow("Disconnected from MongoDB", "database", s.opts.Database)
	return nil
}

func (s *Store) DropDatabase(ctx context.Context) error {
	if err := s.db.Drop(ctx); err != nil {
		return models.NewBackendError("dropDatabase", "", err)
	}
	return nil
}

func (s *Store) ClearCollection(ctx context.Context, collectionName string) error {
	if _, err := s.collection(collectionName).DeleteMany(ctx, bson.M{}); err != nil {
		return models.NewBackendError("clearCollection", collectionName, fmt.Errorf("clear failed: %w", err))
	}
	return nil
}
