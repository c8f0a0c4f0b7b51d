package offer

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// Attribute names of the offers table. valid_until is also the table's TTL
// attribute, so DynamoDB purges expired offers on its own schedule.
const (
	attrTransferID       = "transfer_id"
	attrConnectionHandle = "connection_handle"
)

type dynamoOffer struct {
	TransferID       string `dynamodbav:"transfer_id"`
	ConnectionHandle string `dynamodbav:"connection_handle"`
	// Epoch seconds.
	ValidUntil int64 `dynamodbav:"valid_until"`
}

// DynamoDBDirectory stores offers in a DynamoDB table keyed by transfer_id.
type DynamoDBDirectory struct {
	client dynamodbiface.DynamoDBAPI
	table  string
	clock  Clock
}

func NewDynamoDBDirectory(client dynamodbiface.DynamoDBAPI, table string, clock Clock) *DynamoDBDirectory {
	return &DynamoDBDirectory{
		client: client,
		table:  table,
		clock:  clockOrReal(clock),
	}
}

// NewDynamoDBClient builds a DynamoDB client from a shared AWS session. An
// empty endpoint uses the regional default (set it for DynamoDB Local).
func NewDynamoDBClient(sess *session.Session, endpoint string) *dynamodb.DynamoDB {
	cfg := aws.NewConfig()
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint)
	}
	return dynamodb.New(sess, cfg)
}

func (d *DynamoDBDirectory) Put(ctx context.Context, o Offer) error {
	if err := o.validate(); err != nil {
		return err
	}
	item, err := dynamodbattribute.MarshalMap(dynamoOffer{
		TransferID:       o.TransferID,
		ConnectionHandle: o.ConnectionHandle,
		ValidUntil:       o.ValidUntil.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	if _, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put %q: %w", d.table, err)
	}
	return nil
}

func (d *DynamoDBDirectory) Get(ctx context.Context, transferID string) (Offer, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]*dynamodb.AttributeValue{
			attrTransferID: {S: aws.String(transferID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Offer{}, fmt.Errorf("dynamodb get %q: %w", d.table, err)
	}
	if len(out.Item) == 0 {
		return Offer{}, ErrNotFound
	}

	var rec dynamoOffer
	if err := dynamodbattribute.UnmarshalMap(out.Item, &rec); err != nil {
		return Offer{}, fmt.Errorf("unmarshal offer %q: %w", transferID, err)
	}
	if rec.ConnectionHandle == "" {
		return Offer{}, fmt.Errorf("offer %q: missing %s", transferID, attrConnectionHandle)
	}
	return live(Offer{
		TransferID:       rec.TransferID,
		ConnectionHandle: rec.ConnectionHandle,
		ValidUntil:       time.Unix(rec.ValidUntil, 0),
	}, d.clock.Now())
}
