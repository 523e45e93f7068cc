package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	batchGetMax   = 100
	batchWriteMax = 25
)

// DB is the DynamoDB-backed Store.
type DB struct {
	client *dynamodb.Client
}

// New wraps an existing DynamoDB client.
func New(client *dynamodb.Client) *DB {
	return &DB{client: client}
}

// Connect builds a DynamoDB client from the ambient AWS config. A non-empty
// endpoint overrides the resolved one (local DynamoDB).
func Connect(ctx context.Context, region, endpoint string) (*DB, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if endpoint != "" {
		// Local DynamoDB accepts any static credentials.
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &DB{client: client}, nil
}

// Get returns the item under key, or nil when absent.
func (d *DB) Get(ctx context.Context, table string, key Key, consistent bool) (Item, error) {
	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            keyItem(key),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return nil, fmt.Errorf("get item from %s: %w", table, err)
	}
	if resp.Item == nil {
		return nil, nil
	}
	return resp.Item, nil
}

// Put writes item when cond holds.
func (d *DB) Put(ctx context.Context, table string, item Item, cond Cond) error {
	expr, names, values := cond.expression()
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(table),
		Item:                      item,
		ConditionExpression:       expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return wrapConditional(fmt.Errorf("put item to %s: %w", table, err), err)
	}
	return nil
}

// Update applies deltas to the item under key when cond holds.
func (d *DB) Update(ctx context.Context, table string, key Key, upd Update, cond Cond) error {
	condExpr, names, values := cond.expression()
	if names == nil {
		names = map[string]string{}
	}
	if values == nil {
		values = map[string]types.AttributeValue{}
	}

	updateExpr := upd.expression(names, values)
	if len(values) == 0 {
		values = nil
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       keyItem(key),
		UpdateExpression:          aws.String(updateExpr),
		ConditionExpression:       condExpr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return wrapConditional(fmt.Errorf("update item in %s: %w", table, err), err)
	}
	return nil
}

// Delete removes the item under key when cond holds and returns the old item.
func (d *DB) Delete(ctx context.Context, table string, key Key, cond Cond) (Item, error) {
	expr, names, values := cond.expression()
	resp, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(table),
		Key:                       keyItem(key),
		ConditionExpression:       expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, wrapConditional(fmt.Errorf("delete item from %s: %w", table, err), err)
	}
	if len(resp.Attributes) == 0 {
		return nil, nil
	}
	return resp.Attributes, nil
}

// TransactPuts commits every put or none.
func (d *DB) TransactPuts(ctx context.Context, puts []TransactPut) error {
	items := make([]types.TransactWriteItem, len(puts))
	for i, p := range puts {
		expr, names, values := p.Cond.expression()
		items[i] = types.TransactWriteItem{
			Put: &types.Put{
				TableName:                 aws.String(p.Table),
				Item:                      p.Item,
				ConditionExpression:       expr,
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			},
		}
	}
	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return fmt.Errorf("transact puts: %w", ErrConditionFailed)
				}
			}
		}
		return fmt.Errorf("transact puts: %w", err)
	}
	return nil
}

// BatchGet fetches every key, retrying unprocessed keys until serviced.
func (d *DB) BatchGet(ctx context.Context, table string, keys []Key, consistent bool) ([]Item, error) {
	pending := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		pending[i] = keyItem(k)
	}

	var items []Item
	for len(pending) > 0 {
		chunk := pending
		if len(chunk) > batchGetMax {
			chunk = chunk[:batchGetMax]
		}
		rest := pending[len(chunk):]

		resp, err := d.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				table: {Keys: chunk, ConsistentRead: aws.Bool(consistent)},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("batch get from %s: %w", table, err)
		}
		for _, it := range resp.Responses[table] {
			items = append(items, it)
		}
		// Unprocessed keys go back to the front of the queue.
		pending = append(resp.UnprocessedKeys[table].Keys, rest...)
	}
	return items, nil
}

// BatchDelete removes every key, retrying unprocessed deletes until done.
func (d *DB) BatchDelete(ctx context.Context, table string, keys []Key) error {
	pending := make([]types.WriteRequest, len(keys))
	for i, k := range keys {
		pending[i] = types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: keyItem(k)},
		}
	}

	for len(pending) > 0 {
		chunk := pending
		if len(chunk) > batchWriteMax {
			chunk = chunk[:batchWriteMax]
		}
		rest := pending[len(chunk):]

		resp, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{table: chunk},
		})
		if err != nil {
			return fmt.Errorf("batch delete from %s: %w", table, err)
		}
		pending = append(resp.UnprocessedItems[table], rest...)
	}
	return nil
}

// QueryIndex drains a secondary-index query for attr == value.
func (d *DB) QueryIndex(ctx context.Context, table, index, attr, value string) ([]Item, error) {
	var items []Item
	var startKey map[string]types.AttributeValue
	for {
		resp, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(table),
			IndexName:                 aws.String(index),
			KeyConditionExpression:    aws.String("#k = :v"),
			ExpressionAttributeNames:  map[string]string{"#k": attr},
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": S(value)},
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query %s index %s: %w", table, index, err)
		}
		for _, it := range resp.Items {
			items = append(items, it)
		}
		if resp.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

// expression renders the deltas as a DynamoDB update expression, filling
// names and values in place. Each action keyword appears at most once with
// its actions comma-joined, as the expression grammar requires.
func (u Update) expression(names map[string]string, values map[string]types.AttributeValue) string {
	var clauses []string
	if len(u.Set) > 0 {
		var sets []string
		for i, attr := range sortedKeys(u.Set) {
			n := fmt.Sprintf("#s%d", i)
			v := fmt.Sprintf(":s%d", i)
			names[n] = attr
			values[v] = u.Set[attr]
			sets = append(sets, n+" = "+v)
		}
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(u.AddToSet) > 0 {
		var adds []string
		for i, attr := range sortedKeys(u.AddToSet) {
			n := fmt.Sprintf("#a%d", i)
			v := fmt.Sprintf(":a%d", i)
			names[n] = attr
			values[v] = &types.AttributeValueMemberSS{Value: u.AddToSet[attr]}
			adds = append(adds, n+" "+v)
		}
		clauses = append(clauses, "ADD "+strings.Join(adds, ", "))
	}
	if len(u.DeleteFromSet) > 0 {
		var dels []string
		for i, attr := range sortedKeys(u.DeleteFromSet) {
			n := fmt.Sprintf("#d%d", i)
			v := fmt.Sprintf(":d%d", i)
			names[n] = attr
			values[v] = &types.AttributeValueMemberSS{Value: u.DeleteFromSet[attr]}
			dels = append(dels, n+" "+v)
		}
		clauses = append(clauses, "DELETE "+strings.Join(dels, ", "))
	}
	return strings.Join(clauses, " ")
}

// expression renders the condition as a DynamoDB condition expression.
// Returns nil for the unconditional zero value.
func (c Cond) expression() (*string, map[string]string, map[string]types.AttributeValue) {
	if !c.KeyAbsent && !c.KeyPresent && len(c.FieldEquals) == 0 {
		return nil, nil, nil
	}
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	var equals []string
	for i, attr := range sortedKeys(c.FieldEquals) {
		n := fmt.Sprintf("#c%d", i)
		v := fmt.Sprintf(":c%d", i)
		names[n] = attr
		values[v] = S(c.FieldEquals[attr])
		equals = append(equals, n+" = "+v)
	}
	equalsExpr := strings.Join(equals, " AND ")

	var expr string
	switch {
	case c.KeyAbsent:
		names["#pk"] = c.KeyAttr
		expr = "attribute_not_exists(#pk)"
		if equalsExpr != "" {
			expr += " AND " + equalsExpr
		}
	case c.OrKeyAbsent:
		names["#pk"] = c.KeyAttr
		expr = "attribute_not_exists(#pk) OR (attribute_exists(#pk) AND " + equalsExpr + ")"
	case c.KeyPresent && equalsExpr != "":
		names["#pk"] = c.KeyAttr
		expr = "attribute_exists(#pk) AND " + equalsExpr
	case c.KeyPresent:
		names["#pk"] = c.KeyAttr
		expr = "attribute_exists(#pk)"
	default:
		expr = equalsExpr
	}
	if len(values) == 0 {
		values = nil
	}
	return aws.String(expr), names, values
}

func wrapConditional(wrapped error, err error) error {
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return fmt.Errorf("%v: %w", wrapped, ErrConditionFailed)
	}
	return wrapped
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
