package connectiondao

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// MaxBatchSize is the DynamoDB BatchWriteItem limit.
const MaxBatchSize = 25

// DAO provides access to the WebSocket connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
	}
}

// Put stores a connection record, overwriting any record with the same key.
func (d *DAO) Put(ctx context.Context, conn Connection) error {
	if err := d.table.Put(conn).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put connection %v for client %v: %w", conn.ConnectionID, conn.ClientID, err)
	}
	return nil
}

// QueryByClient returns every connection owned by clientID. The read is
// strongly consistent so a connect is visible to the next lookup.
func (d *DAO) QueryByClient(ctx context.Context, clientID string) ([]Connection, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("clientId = :clientId"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":clientId": {S: aws.String(clientID)},
		},
		ConsistentRead: aws.Bool(true),
	}

	var (
		conns   []Connection
		pageErr error
	)
	err := d.api.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, _ bool) bool {
		var items []Connection
		if pageErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); pageErr != nil {
			return false
		}
		conns = append(conns, items...)
		return true
	})
	if err == nil {
		err = pageErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query connections for client %v: %w", clientID, err)
	}
	return conns, nil
}

// QueryByConnection returns every record sharing connectionID using the
// ConnectionIdIndex GSI. GSI reads are eventually consistent.
func (d *DAO) QueryByConnection(ctx context.Context, connectionID string) ([]Connection, error) {
	var conns []Connection
	err := d.table.Query("#ConnectionID = ?", connectionID).
		IndexName(ConnectionIndex).
		FindAllWithContext(ctx, &conns)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections by connection id %v: %w", connectionID, err)
	}
	return conns, nil
}

// ScanAll returns every record in the table.
func (d *DAO) ScanAll(ctx context.Context) ([]Connection, error) {
	var (
		conns   []Connection
		pageErr error
	)
	input := &dynamodb.ScanInput{TableName: aws.String(d.tableName)}
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		var items []Connection
		if pageErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); pageErr != nil {
			return false
		}
		conns = append(conns, items...)
		return true
	})
	if err == nil {
		err = pageErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan connections table %v: %w", d.tableName, err)
	}
	return conns, nil
}

// Delete removes one record. Deleting a missing record is not an error.
func (d *DAO) Delete(ctx context.Context, key Key) error {
	if err := d.table.Delete(key.ClientID).Range(key.ConnectionID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete connection %v for client %v: %w", key.ConnectionID, key.ClientID, err)
	}
	return nil
}

// BatchDelete removes keys in chunks of at most MaxBatchSize per
// BatchWriteItem call. Unprocessed items of a chunk are resubmitted with
// backoff until the chunk completes.
func (d *DAO) BatchDelete(ctx context.Context, keys []Key) error {
	for i := 0; i < len(keys); i += MaxBatchSize {
		end := i + MaxBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := d.deleteChunk(ctx, keys[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d *DAO) deleteChunk(ctx context.Context, chunk []Key) error {
	writeRequests := make([]*dynamodb.WriteRequest, len(chunk))
	for j, key := range chunk {
		item, err := dynamodbattribute.MarshalMap(key)
		if err != nil {
			return fmt.Errorf("failed to marshal key for connection %v: %w", key.ConnectionID, err)
		}
		writeRequests[j] = &dynamodb.WriteRequest{
			DeleteRequest: &dynamodb.DeleteRequest{Key: item},
		}
	}

	unprocessed := map[string][]*dynamodb.WriteRequest{
		d.tableName: writeRequests,
	}

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		output, err := d.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: unprocessed,
		})
		if err != nil {
			return fmt.Errorf("failed to batch delete %d connections: %w", len(chunk), err)
		}
		if len(output.UnprocessedItems) == 0 {
			return nil
		}
		unprocessed = output.UnprocessedItems
		if attempt == maxAttempts-1 {
			break
		}
		backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during batch delete: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed to delete all connections: %d items unprocessed after %d attempts", len(unprocessed[d.tableName]), maxAttempts)
}
