package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/malbeclabs/querybroker/pkg/guard"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/schema"
)

// SampleSize is the number of documents fetched per collection during introspection.
const SampleSize = 5

type mongoDriver struct {
	log *slog.Logger
}

func NewMongoDriver(log *slog.Logger) Driver {
	return &mongoDriver{log: log}
}

func (d *mongoDriver) Kinds() []registry.Kind {
	return []registry.Kind{registry.KindMongoDB}
}

func (d *mongoDriver) Open(ctx context.Context, target registry.Target) (Handle, error) {
	uri := target.ConnString()

	dbName := target.Database
	if dbName == "" {
		cs, err := connstring.ParseAndValidate(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mongodb uri: %w", err)
		}
		dbName = cs.Database
	}
	if dbName == "" {
		return nil, errors.New("database name is required for document targets")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	d.log.Info("mongo: client connected", "target", target.ID, "database", dbName)

	return &mongoHandle{
		log:    d.log,
		target: target,
		client: client,
		db:     client.Database(dbName),
	}, nil
}

type mongoHandle struct {
	log    *slog.Logger
	target registry.Target
	client *mongo.Client
	db     *mongo.Database
}

func (h *mongoHandle) Introspect(ctx context.Context) (schema.Snapshot, error) {
	names, err := h.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("failed to list collections: %w", err)
	}
	sort.Strings(names)

	snap := schema.Snapshot{Collections: make([]schema.Collection, 0, len(names))}
	for _, name := range names {
		cur, err := h.db.Collection(name).Find(ctx, bson.D{}, options.Find().SetLimit(SampleSize))
		if err != nil {
			return schema.Snapshot{}, fmt.Errorf("failed to sample collection %s: %w", name, err)
		}
		var docs []bson.M
		if err := cur.All(ctx, &docs); err != nil {
			return schema.Snapshot{}, fmt.Errorf("failed to decode samples from %s: %w", name, err)
		}
		samples := make([]map[string]any, len(docs))
		for i, doc := range docs {
			samples[i] = normalizeMap(doc)
		}
		snap.Collections = append(snap.Collections, schema.Collection{Name: name, Samples: samples})
	}
	return snap, nil
}

func (h *mongoHandle) Execute(ctx context.Context, c query.Candidate) (query.Result, error) {
	op := c.Mongo
	if op == nil || op.Collection == "" {
		return query.Result{}, errors.New("document candidate has no collection")
	}
	if stage, ok := guard.WriteStage(op.Pipeline); ok {
		return query.Result{}, query.NewError(query.KindGuardRejection, "pipeline stage "+stage+" is not allowed")
	}

	coll := h.db.Collection(op.Collection)

	var (
		cur *mongo.Cursor
		err error
	)
	if len(op.Pipeline) > 0 {
		cur, err = coll.Aggregate(ctx, boundedPipeline(op.Pipeline))
	} else {
		filter := op.Filter
		if filter == nil {
			filter = map[string]any{}
		}
		cur, err = coll.Find(ctx, filter, options.Find().SetLimit(MaxDocuments))
	}
	if err != nil {
		return query.Result{}, fmt.Errorf("failed to query collection %s: %w", op.Collection, err)
	}
	defer cur.Close(ctx)

	rows := make([]map[string]any, 0)
	for len(rows) < MaxDocuments && cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return query.Result{}, fmt.Errorf("failed to decode document: %w", err)
		}
		rows = append(rows, normalizeMap(doc))
	}
	if err := cur.Err(); err != nil {
		return query.Result{}, fmt.Errorf("error iterating documents: %w", err)
	}

	kind := "find"
	if len(op.Pipeline) > 0 {
		kind = "aggregate"
	}
	return query.Result{
		Rows: rows,
		Meta: map[string]any{"type": kind, "collection": op.Collection},
	}, nil
}

func (h *mongoHandle) Ping(ctx context.Context) error {
	return h.client.Ping(ctx, readpref.Primary())
}

func (h *mongoHandle) Close() error {
	return h.client.Disconnect(context.Background())
}

// boundedPipeline returns pipeline with a trailing $limit stage unless it already limits its
// output. The candidate's pipeline is not modified.
func boundedPipeline(pipeline []map[string]any) []map[string]any {
	for _, stage := range pipeline {
		if _, ok := stage["$limit"]; ok {
			return pipeline
		}
	}
	out := make([]map[string]any, 0, len(pipeline)+1)
	out = append(out, pipeline...)
	return append(out, map[string]any{"$limit": MaxDocuments})
}
