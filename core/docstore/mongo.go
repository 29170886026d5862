package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"store-migrator/core/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoRecord is how a document is laid out in MongoDB. Every logical
// collection shares one physical collection, keyed by the document path.
type mongoRecord struct {
	Path       string    `bson:"_id"`
	Collection string    `bson:"collection"`
	DocID      string    `bson:"doc_id"`
	Fields     bson.M    `bson:"fields"`
	UpdateTime time.Time `bson:"update_time"`
}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client       *mongo.Client
	coll         *mongo.Collection
	transactions bool
	now          func() time.Time
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg Config) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errs.FatalConfigf("docstore", "%w: target.uri", errs.ErrMissingConfig)
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(timeout)*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	name := cfg.Collection
	if name == "" {
		name = "documents"
	}

	return &MongoStore{
		client:       client,
		coll:         client.Database(cfg.Database).Collection(name),
		transactions: cfg.Transactions,
		now:          time.Now,
	}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CommitBatch applies ops as one ordered bulk write, inside a transaction
// when enabled.
func (s *MongoStore) CommitBatch(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}
	models, err := buildWriteModels(ops, s.now().UTC())
	if err != nil {
		return err
	}

	write := func(ctx context.Context) error {
		_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
		return err
	}

	if !s.transactions {
		return classifyMongoError("commit batch", write(ctx))
	}

	session, err := s.client.StartSession()
	if err != nil {
		return classifyMongoError("start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, write(sc)
	})
	return classifyMongoError("commit batch", err)
}

// ListDocuments returns every document of a collection ordered by id.
func (s *MongoStore) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"collection": collection},
		options.Find().SetSort(bson.D{{Key: "doc_id", Value: 1}}))
	if err != nil {
		return nil, classifyMongoError("list "+collection, err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		var rec mongoRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode document in %s: %w", collection, err)
		}
		docs = append(docs, rec.toDocument())
	}
	if err := cursor.Err(); err != nil {
		return nil, classifyMongoError("list "+collection, err)
	}
	return docs, nil
}

// GetDocument returns one document.
func (s *MongoStore) GetDocument(ctx context.Context, collection, id string) (Document, bool, error) {
	var rec mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": collection + "/" + id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, classifyMongoError("get "+collection+"/"+id, err)
	}
	return rec.toDocument(), true, nil
}

// ListCollections returns every collection path that holds documents.
func (s *MongoStore) ListCollections(ctx context.Context) ([]string, error) {
	values, err := s.coll.Distinct(ctx, "collection", bson.M{})
	if err != nil {
		return nil, classifyMongoError("list collections", err)
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		if name, ok := v.(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func buildWriteModels(ops []Operation, now time.Time) ([]mongo.WriteModel, error) {
	models := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, err
		}
		filter := bson.M{"_id": op.Key()}
		switch op.Kind {
		case OpUpsert:
			rec := mongoRecord{
				Path:       op.Key(),
				Collection: op.Collection,
				DocID:      op.DocID,
				Fields:     bson.M(ResolveServerTimestamps(op.Fields, now)),
				UpdateTime: now,
			}
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(filter).
				SetReplacement(rec).
				SetUpsert(true))
		case OpDelete:
			models = append(models, mongo.NewDeleteOneModel().SetFilter(filter))
		case OpFieldDelete:
			unset := bson.M{}
			for _, name := range op.FieldNames {
				unset["fields."+name] = ""
			}
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(filter).
				SetUpdate(bson.M{"$unset": unset, "$set": bson.M{"update_time": now}}))
		}
	}
	return models, nil
}

func (r mongoRecord) toDocument() Document {
	fields, _ := fromBSON(r.Fields).(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	return Document{Collection: r.Collection, ID: r.DocID, Fields: fields}
}

// fromBSON converts driver types into the plain map/slice/time values the
// engine works with.
func fromBSON(v any) any {
	switch val := v.(type) {
	case bson.M:
		return fromBSON(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		return fromBSON([]any(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSON(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case int32:
		return int64(val)
	default:
		return val
	}
}

func classifyMongoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return errs.Transient(op, err)
	}
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 && bulkErr.WriteConcernError == nil {
		return errs.Validation(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
