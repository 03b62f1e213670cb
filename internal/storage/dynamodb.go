package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/painradar/aggregation-service/internal/config"
	"github.com/painradar/aggregation-service/internal/models"
)

// DynamoDBSink implements Sink using AWS DynamoDB.
type DynamoDBSink struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// NewDynamoDBSink creates a new DynamoDB sink instance.
func NewDynamoDBSink(cfg config.StorageConfig) (*DynamoDBSink, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	sink := &DynamoDBSink{
		client:    dynamodb.New(sess),
		tableName: cfg.TableName,
	}

	// Create tables if they don't exist (for local testing)
	for _, table := range []string{sink.tableName, sink.tableName + "_status"} {
		if err := sink.ensureTable(table); err != nil {
			return nil, fmt.Errorf("failed to ensure table %s exists: %w", table, err)
		}
	}

	return sink, nil
}

func (d *DynamoDBSink) ensureTable(table string) error {
	_, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err == nil {
		return nil // Table already exists
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	if _, err := d.client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
}

// InsertAccepted stores the accepted items; puts with an existing id
// overwrite the previous record wholesale.
func (d *DynamoDBSink) InsertAccepted(ctx context.Context, items []models.ClassifiedItem) error {
	for _, item := range items {
		av, err := dynamodbattribute.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item %s: %w", item.ID, err)
		}

		_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.tableName),
			Item:      av,
		})
		if err != nil {
			return fmt.Errorf("failed to store item %s: %w", item.ID, err)
		}
	}
	return nil
}

func (d *DynamoDBSink) scanAll(ctx context.Context, input *dynamodb.ScanInput) ([]models.ClassifiedItem, error) {
	result, err := d.client.ScanWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}
	var items []models.ClassifiedItem
	if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Confidence != items[j].Confidence {
			return items[i].Confidence > items[j].Confidence
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// GetProblems retrieves persisted items ordered by confidence. DynamoDB has
// no offset semantics on scans, so the window is applied client-side.
func (d *DynamoDBSink) GetProblems(ctx context.Context, limit, offset int) ([]models.ClassifiedItem, error) {
	items, err := d.scanAll(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return nil, err
	}
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Search retrieves persisted items whose title or body contains the term.
// Matching is case-insensitive and applied client-side after the scan.
func (d *DynamoDBSink) Search(ctx context.Context, term string, limit int) ([]models.ClassifiedItem, error) {
	items, err := d.scanAll(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	var matched []models.ClassifiedItem
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Title), needle) ||
			strings.Contains(strings.ToLower(item.BodyText), needle) {
			matched = append(matched, item)
			if limit > 0 && len(matched) == limit {
				break
			}
		}
	}
	return matched, nil
}

// GetStats summarizes the persisted items, computed client-side from a scan.
func (d *DynamoDBSink) GetStats(ctx context.Context) (*models.Stats, error) {
	items, err := d.scanAll(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return nil, err
	}
	stats := &models.Stats{ByCategory: make(map[string]int)}
	var sum float64
	for _, item := range items {
		stats.TotalItems++
		stats.ByCategory[string(item.Category)]++
		sum += item.Confidence
	}
	if stats.TotalItems > 0 {
		stats.AvgConfidence = sum / float64(stats.TotalItems)
	}
	return stats, nil
}

// UpdateRunStatus stores the latest background-run outcome.
func (d *DynamoDBSink) UpdateRunStatus(ctx context.Context, status models.RunStatus) error {
	av, err := dynamodbattribute.MarshalMap(status)
	if err != nil {
		return fmt.Errorf("failed to marshal run status: %w", err)
	}
	av["id"] = &dynamodb.AttributeValue{S: aws.String("aggregation_status")}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName + "_status"),
		Item:      av,
	})
	return err
}

// GetRunStatus retrieves the latest background-run outcome.
func (d *DynamoDBSink) GetRunStatus(ctx context.Context) (*models.RunStatus, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName + "_status"),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String("aggregation_status")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get run status: %w", err)
	}
	if result.Item == nil {
		return &models.RunStatus{Status: "never_run"}, nil
	}

	var status models.RunStatus
	if err := dynamodbattribute.UnmarshalMap(result.Item, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run status: %w", err)
	}
	return &status, nil
}

// Close closes the DynamoDB connection.
func (d *DynamoDBSink) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}
