package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/xuxing3/JiZhang/internal/domain"
)

// Mongo is the MongoDB-backed ExpenseRepository.
type Mongo struct {
	client    *mongo.Client
	col       *mongo.Collection
	defaultTZ string
	log       zerolog.Logger
}

// Connect dials Mongo, verifies connectivity with a ping, and ensures
// the compound index the listing queries lean on. A failure here is
// fatal to the caller: the service is meaningless without persistence.
func Connect(ctx context.Context, uri, database, collection, defaultTZ string, log zerolog.Logger) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	col := client.Database(database).Collection(collection)
	_, err = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "ym", Value: 1}, {Key: "ts_utc", Value: 1}},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to ensure expenses index")
	}

	return &Mongo{client: client, col: col, defaultTZ: defaultTZ, log: log}, nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Insert implements ExpenseRepository.
func (m *Mongo) Insert(ctx context.Context, e *domain.Expense) (*domain.Expense, error) {
	if e.CreatedAt == nil {
		now := time.Now().UTC()
		e.CreatedAt = &now
	}

	res, err := m.col.InsertOne(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("store: insert expense: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		e.ID = id
	}
	return e, nil
}

// Update implements ExpenseRepository. Only $set is used, so fields the
// patch does not name (including ones this codebase has never heard of)
// stay exactly as some producer wrote them.
func (m *Mongo) Update(ctx context.Context, id primitive.ObjectID, chatID *int64, patch Patch) (*domain.Expense, error) {
	set := bson.M{}
	if patch.Amount != nil {
		set["amount"] = *patch.Amount
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Payee != nil {
		set["payee"] = *patch.Payee
	}
	if patch.Note != nil {
		set["note"] = *patch.Note
	}
	if patch.Time != nil {
		set["time"] = *patch.Time
		set["ts_utc"] = *patch.TSUTC
		set["time_local"] = *patch.TimeLocal
		set["tz"] = *patch.TZ
		set["ym"] = *patch.YM
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("store: empty patch")
	}

	var updated domain.Expense
	err := m.col.FindOneAndUpdate(
		ctx,
		m.idFilter(id, chatID),
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: update expense: %w", err)
	}
	return &updated, nil
}

// Delete implements ExpenseRepository.
func (m *Mongo) Delete(ctx context.Context, id primitive.ObjectID, chatID *int64) error {
	res, err := m.col.DeleteOne(ctx, m.idFilter(id, chatID))
	if err != nil {
		return fmt.Errorf("store: delete expense: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements ExpenseRepository.
func (m *Mongo) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	cursor, err := m.col.Aggregate(ctx, listPipeline(f, m.defaultTZ), options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, fmt.Errorf("store: list aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	var pages []struct {
		Data  []domain.Expense `bson:"data"`
		Total []struct {
			Count int64 `bson:"count"`
		} `bson:"total"`
	}
	if err := cursor.All(ctx, &pages); err != nil {
		return nil, fmt.Errorf("store: list decode: %w", err)
	}

	result := &ListResult{Items: []domain.Expense{}}
	if len(pages) > 0 {
		if pages[0].Data != nil {
			result.Items = pages[0].Data
		}
		if len(pages[0].Total) > 0 {
			result.Total = pages[0].Total[0].Count
		}
	}
	return result, nil
}

// SummarizeByCategory implements ExpenseRepository.
func (m *Mongo) SummarizeByCategory(ctx context.Context, f SummaryFilter) ([]CategoryTotal, error) {
	cursor, err := m.col.Aggregate(ctx, summaryPipeline(f, m.defaultTZ), options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, fmt.Errorf("store: summary aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	totals := []CategoryTotal{}
	if err := cursor.All(ctx, &totals); err != nil {
		return nil, fmt.Errorf("store: summary decode: %w", err)
	}
	return totals, nil
}

// ListMonth implements ExpenseRepository.
func (m *Mongo) ListMonth(ctx context.Context, chatID *int64, ym string, limit int64) ([]domain.Expense, error) {
	filter := bson.M{"ym": ym}
	if chatID != nil {
		filter = bson.M{"ym": ym, "$or": scopeMatch(*chatID)["$or"]}
	}

	opts := options.Find().SetSort(bson.D{{Key: "ts_utc", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list month: %w", err)
	}
	defer cursor.Close(ctx)

	var items []domain.Expense
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("store: list month decode: %w", err)
	}
	return items, nil
}

func (m *Mongo) idFilter(id primitive.ObjectID, chatID *int64) bson.M {
	if chatID == nil {
		return bson.M{"_id": id}
	}
	return bson.M{"_id": id, "$or": scopeMatch(*chatID)["$or"]}
}

var _ ExpenseRepository = (*Mongo)(nil)
