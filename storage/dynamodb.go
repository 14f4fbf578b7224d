package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DynamoDBIndex is an Index backed by a DynamoDB table whose partition key is
// the string attribute "k". Items carry the "extension" and the hex-encoded
// "data" as string attributes.
type DynamoDBIndex struct {
	table string

	// Do throttling on our side based on configured RCUs/WCUs so the
	// client doesn't have to retry.
	getLimiter *rate.Limiter
	putLimiter *rate.Limiter

	ddb *dynamodb.DynamoDB
}

func NewDynamoDBIndex(table string, opts ...Option) (*DynamoDBIndex, error) {
	var o awsOptions
	for _, opt := range opts {
		opt(&o)
	}
	sess, err := o.session()
	if err != nil {
		return nil, err
	}
	return newDynamoDBIndex(sess, table)
}

func newDynamoDBIndex(p client.ConfigProvider, table string) (*DynamoDBIndex, error) {
	s := &DynamoDBIndex{
		table: table,
		ddb:   dynamodb.New(p),
	}
	if err := s.configureLimiters(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DynamoDBIndex) configureLimiters() error {
	result, err := s.ddb.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: &s.table,
	})
	if err != nil {
		return fmt.Errorf("could not describe table %q: %w", s.table, err)
	}
	s.getLimiter = rate.NewLimiter(rate.Inf, 1)
	s.putLimiter = rate.NewLimiter(rate.Inf, 1)
	pt := result.Table.ProvisionedThroughput
	if pt == nil {
		return nil
	}
	// Items hold whole images, so one request can cost several capacity
	// units; the limits are a floor, not an exact budget. On-demand tables
	// report zero and are left unthrottled.
	if rcus := aws.Int64Value(pt.ReadCapacityUnits); rcus > 0 {
		s.getLimiter = rate.NewLimiter(rate.Every(time.Duration(1_000_000/rcus)*time.Microsecond), 1)
	}
	if wcus := aws.Int64Value(pt.WriteCapacityUnits); wcus > 0 {
		s.putLimiter = rate.NewLimiter(rate.Every(time.Duration(1_000_000/wcus)*time.Microsecond), 1)
	}
	log.WithFields(log.Fields{
		"table": s.table,
		"rcus":  aws.Int64Value(pt.ReadCapacityUnits),
		"wcus":  aws.Int64Value(pt.WriteCapacityUnits),
	}).Debug("Configured limiters")
	return nil
}

func (s *DynamoDBIndex) Get(ctx context.Context, key string) (Entry, error) {
	if err := s.getLimiter.Wait(ctx); err != nil {
		return Entry{}, err
	}
	output, err := s.ddb.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            ddbKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == dynamodb.ErrCodeResourceNotFoundException {
				return Entry{}, fmt.Errorf("%v: %w", e, ErrNotFound)
			}
		}
		return Entry{}, err
	}
	if output.Item == nil {
		return Entry{}, fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	return entryFromItem(key, output.Item)
}

func (s *DynamoDBIndex) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.getLimiter.Wait(ctx); err != nil {
		return false, err
	}
	output, err := s.ddb.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:            &s.table,
		Key:                  ddbKey(key),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("k"),
	})
	if err != nil {
		return false, err
	}
	return output.Item != nil, nil
}

func (s *DynamoDBIndex) Put(ctx context.Context, key string, entry Entry) error {
	return s.put(ctx, key, entry, nil)
}

func (s *DynamoDBIndex) PutIfAbsent(ctx context.Context, key string, entry Entry) error {
	return s.put(ctx, key, entry, aws.String("attribute_not_exists(k)"))
}

func (s *DynamoDBIndex) put(ctx context.Context, key string, entry Entry, condition *string) error {
	var input dynamodb.PutItemInput
	input.TableName = &s.table
	input.ConditionExpression = condition
	input.Item = map[string]*dynamodb.AttributeValue{
		"k":         ddbString(key),
		"extension": ddbString(entry.Extension),
		"data":      ddbString(hex.EncodeToString(entry.Data)),
	}
	if err := s.putLimiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.ddb.PutItemWithContext(ctx, &input)
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
				return fmt.Errorf("%.40q: %w", key, ErrExists)
			}
		}
		return err
	}
	return nil
}

func (s *DynamoDBIndex) Delete(ctx context.Context, key string) error {
	if err := s.putLimiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.ddb.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key:       ddbKey(key),
	})
	return err
}

// Keys scans the whole table; the prefix is applied on our side since a
// scan costs the same read capacity either way.
func (s *DynamoDBIndex) Keys(ctx context.Context, prefix string, fn func(string) error) error {
	var fnErr error
	err := s.ddb.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName:            &s.table,
		ProjectionExpression: aws.String("k"),
	}, func(page *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range page.Items {
			k := item["k"]
			if k == nil || k.S == nil || !strings.HasPrefix(*k.S, prefix) {
				continue
			}
			if fnErr = fn(*k.S); fnErr != nil {
				return false
			}
		}
		return true
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

func entryFromItem(key string, item map[string]*dynamodb.AttributeValue) (e Entry, err error) {
	if ext := item["extension"]; ext != nil && ext.S != nil {
		e.Extension = *ext.S
	}
	var data string
	if d := item["data"]; d != nil && d.S != nil {
		data = *d.S
	}
	e.Data, err = hex.DecodeString(data)
	if err != nil {
		return Entry{}, fmt.Errorf("%.40q: %v: %w", key, err, ErrBadRecord)
	}
	return e, nil
}

func ddbKey(key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"k": ddbString(key),
	}
}

func ddbString(s string) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{
		S: aws.String(s),
	}
}
