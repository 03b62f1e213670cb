package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/painradar/aggregation-service/internal/config"
	"github.com/painradar/aggregation-service/internal/models"
)

// MongoDBSink implements Sink on MongoDB.
type MongoDBSink struct {
	client   *mongo.Client
	problems *mongo.Collection
	status   *mongo.Collection
}

// problemDoc mirrors models.ClassifiedItem with the canonical id as _id.
type problemDoc struct {
	ID              string   `bson:"_id"`
	Title           string   `bson:"title"`
	BodyText        string   `bson:"body_text"`
	URL             string   `bson:"url"`
	EngagementScore int      `bson:"engagement_score"`
	CommentCount    int      `bson:"comment_count"`
	CreatedAt       int64    `bson:"created_at"`
	OriginGroup     string   `bson:"origin_group"`
	SourceType      string   `bson:"source_type"`
	IsRealProblem   bool     `bson:"is_real_problem"`
	Category        string   `bson:"category"`
	Confidence      float64  `bson:"confidence"`
	Reasoning       string   `bson:"reasoning"`
	Keywords        []string `bson:"keywords"`
}

type runStatusDoc struct {
	ID                string    `bson:"_id"`
	LastSuccessfulRun time.Time `bson:"last_successful_run"`
	LastAttempt       time.Time `bson:"last_attempt"`
	Status            string    `bson:"status"`
	ErrorMessage      string    `bson:"error_message"`
	ItemsAccepted     int       `bson:"items_accepted"`
}

// NewMongoDBSink connects to MongoDB and verifies the connection.
func NewMongoDBSink(ctx context.Context, cfg config.StorageConfig) (*MongoDBSink, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(cfg.MongoDBName)
	return &MongoDBSink{
		client:   client,
		problems: db.Collection("problems"),
		status:   db.Collection("run_status"),
	}, nil
}

func toDoc(item models.ClassifiedItem) problemDoc {
	return problemDoc{
		ID:              item.ID,
		Title:           item.Title,
		BodyText:        item.BodyText,
		URL:             item.URL,
		EngagementScore: item.EngagementScore,
		CommentCount:    item.CommentCount,
		CreatedAt:       item.CreatedAt,
		OriginGroup:     item.OriginGroup,
		SourceType:      string(item.SourceType),
		IsRealProblem:   item.IsRealProblem,
		Category:        string(item.Category),
		Confidence:      item.Confidence,
		Reasoning:       item.Reasoning,
		Keywords:        item.Keywords,
	}
}

func fromDoc(doc problemDoc) models.ClassifiedItem {
	return models.ClassifiedItem{
		CanonicalItem: models.CanonicalItem{
			ID:              doc.ID,
			Title:           doc.Title,
			BodyText:        doc.BodyText,
			URL:             doc.URL,
			EngagementScore: doc.EngagementScore,
			CommentCount:    doc.CommentCount,
			CreatedAt:       doc.CreatedAt,
			OriginGroup:     doc.OriginGroup,
			SourceType:      models.SourceType(doc.SourceType),
		},
		Classification: models.Classification{
			IsRealProblem: doc.IsRealProblem,
			Category:      models.Category(doc.Category),
			Confidence:    doc.Confidence,
			Reasoning:     doc.Reasoning,
			Keywords:      doc.Keywords,
		},
	}
}

// InsertAccepted upserts the accepted items keyed by canonical id.
func (m *MongoDBSink) InsertAccepted(ctx context.Context, items []models.ClassifiedItem) error {
	if len(items) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(items))
	for _, item := range items {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": item.ID}).
			SetReplacement(toDoc(item)).
			SetUpsert(true))
	}
	if _, err := m.problems.BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("failed to store items: %w", err)
	}
	return nil
}

// GetProblems retrieves persisted items ordered by confidence.
func (m *MongoDBSink) GetProblems(ctx context.Context, limit, offset int) ([]models.ClassifiedItem, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "confidence", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cursor, err := m.problems.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query problems: %w", err)
	}
	return m.decodeProblems(ctx, cursor)
}

// Search retrieves persisted items whose title or body contains the term.
func (m *MongoDBSink) Search(ctx context.Context, term string, limit int) ([]models.ClassifiedItem, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"title": pattern},
		bson.M{"body_text": pattern},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "confidence", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := m.problems.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search problems: %w", err)
	}
	return m.decodeProblems(ctx, cursor)
}

func (m *MongoDBSink) decodeProblems(ctx context.Context, cursor *mongo.Cursor) ([]models.ClassifiedItem, error) {
	defer cursor.Close(ctx)
	var items []models.ClassifiedItem
	for cursor.Next(ctx) {
		var doc problemDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode problem: %w", err)
		}
		items = append(items, fromDoc(doc))
	}
	return items, cursor.Err()
}

// GetStats summarizes the persisted items via an aggregation pipeline.
func (m *MongoDBSink) GetStats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{ByCategory: make(map[string]int)}

	cursor, err := m.problems.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$category",
			"count": bson.M{"$sum": 1},
			"avg":   bson.M{"$avg": "$confidence"},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	defer cursor.Close(ctx)

	var weighted float64
	for cursor.Next(ctx) {
		var row struct {
			ID    string  `bson:"_id"`
			Count int     `bson:"count"`
			Avg   float64 `bson:"avg"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode stats row: %w", err)
		}
		stats.ByCategory[row.ID] = row.Count
		stats.TotalItems += row.Count
		weighted += row.Avg * float64(row.Count)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	if stats.TotalItems > 0 {
		stats.AvgConfidence = weighted / float64(stats.TotalItems)
	}
	return stats, nil
}

// UpdateRunStatus stores the latest background-run outcome.
func (m *MongoDBSink) UpdateRunStatus(ctx context.Context, status models.RunStatus) error {
	doc := runStatusDoc{
		ID:                "aggregation",
		LastSuccessfulRun: status.LastSuccessfulRun,
		LastAttempt:       status.LastAttempt,
		Status:            status.Status,
		ErrorMessage:      status.ErrorMessage,
		ItemsAccepted:     status.ItemsAccepted,
	}
	_, err := m.status.ReplaceOne(ctx, bson.M{"_id": "aggregation"}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// GetRunStatus retrieves the latest background-run outcome.
func (m *MongoDBSink) GetRunStatus(ctx context.Context) (*models.RunStatus, error) {
	var doc runStatusDoc
	err := m.status.FindOne(ctx, bson.M{"_id": "aggregation"}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return &models.RunStatus{Status: "never_run"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run status: %w", err)
	}
	return &models.RunStatus{
		LastSuccessfulRun: doc.LastSuccessfulRun,
		LastAttempt:       doc.LastAttempt,
		Status:            doc.Status,
		ErrorMessage:      doc.ErrorMessage,
		ItemsAccepted:     doc.ItemsAccepted,
	}, nil
}

// Close disconnects from MongoDB.
func (m *MongoDBSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
