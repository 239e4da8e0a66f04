package localdatastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/backendtester/harness/wire"
)

const (
	// Schema of the DynamoDB table
	tablePartitionKey = "namespace"
	tableSortKey      = "key"
	itemAttribute     = "item"
	nextIDAttribute   = "next_id"

	idsPartition = "$ids"
)

type dynamoDBStorage struct {
	client *dynamodb.DynamoDB
	table  string
}

// NewDynamoDBStorage connects to DynamoDB and creates the table if it does not exist yet.
// Credentials come from the usual AWS environment variables and shared files.
func NewDynamoDBStorage(ctx context.Context, opts DynamoDBOptions) (Storage, error) {
	table := opts.Table
	if table == "" {
		table = defaultDynamoDBTable
	}
	config := aws.NewConfig()
	if opts.Region != "" {
		config = config.WithRegion(opts.Region)
	} else {
		config = config.WithRegion(defaultRegion)
	}
	if opts.Endpoint != "" {
		config = config.WithEndpoint(opts.Endpoint)
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, err
	}
	d := &dynamoDBStorage{client: dynamodb.New(sess), table: table}
	if err := d.ensureTable(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *dynamoDBStorage) ensureTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if !errors.As(err, &aerr) || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("could not describe DynamoDB table %q: %w", d.table, err)
	}
	_, err = d.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String(tablePartitionKey), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
			{AttributeName: aws.String(tableSortKey), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String(tablePartitionKey), KeyType: aws.String(dynamodb.KeyTypeHash)},
			{AttributeName: aws.String(tableSortKey), KeyType: aws.String(dynamodb.KeyTypeRange)},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
		TableName:   aws.String(d.table),
	})
	if err != nil {
		return fmt.Errorf("could not create DynamoDB table %q: %w", d.table, err)
	}
	return d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
}

func itemKey(partition, sort string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		tablePartitionKey: {S: aws.String(partition)},
		tableSortKey:      {S: aws.String(sort)},
	}
}

func (d *dynamoDBStorage) Get(ctx context.Context, key wire.Key) (wire.Entity, bool, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		Key:            itemKey(keyScope(key), key.String()),
	})
	if err != nil {
		return wire.Entity{}, false, err
	}
	if result.Item == nil || result.Item[itemAttribute] == nil {
		return wire.Entity{}, false, nil
	}
	e, err := wire.DecodeEntity(result.Item[itemAttribute].B)
	return e, err == nil, err
}

func (d *dynamoDBStorage) Put(ctx context.Context, entity wire.Entity) error {
	item := itemKey(keyScope(entity.Key), entity.Key.String())
	item[itemAttribute] = &dynamodb.AttributeValue{B: wire.EncodeEntity(entity)}
	_, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	return err
}

func (d *dynamoDBStorage) Delete(ctx context.Context, key wire.Key) error {
	_, err := d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       itemKey(keyScope(key), key.String()),
	})
	return err
}

func (d *dynamoDBStorage) List(ctx context.Context, app, namespace, kind string) ([]wire.Entity, error) {
	query := &dynamodb.QueryInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		KeyConditions: map[string]*dynamodb.Condition{
			tablePartitionKey: {
				ComparisonOperator: aws.String(dynamodb.ComparisonOperatorEq),
				AttributeValueList: []*dynamodb.AttributeValue{
					{S: aws.String(scopeOf(app, namespace, kind))},
				},
			},
		},
	}
	var items [][]byte
	err := d.client.QueryPagesWithContext(ctx, query, func(out *dynamodb.QueryOutput, lastPage bool) bool {
		for _, item := range out.Items {
			if v := item[itemAttribute]; v != nil {
				items = append(items, v.B)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(items)
}

func (d *dynamoDBStorage) AllocateID(ctx context.Context, app string) (int64, error) {
	out, err := d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       itemKey(idsPartition, app),
		UpdateExpression:          aws.String("ADD " + nextIDAttribute + " :one"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{":one": {N: aws.String("1")}},
		ReturnValues:              aws.String(dynamodb.ReturnValueUpdatedNew),
	})
	if err != nil {
		return 0, err
	}
	v := out.Attributes[nextIDAttribute]
	if v == nil || v.N == nil {
		return 0, fmt.Errorf("DynamoDB did not return the new value of %s", nextIDAttribute)
	}
	return strconv.ParseInt(*v.N, 10, 64)
}

func (d *dynamoDBStorage) Close() error {
	return nil
}
