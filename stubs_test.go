package fragcache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// stubRedisClient is an in-process RedisClient. SCAN understands only the
// "<escaped prefix>*" patterns the store issues.
type stubRedisClient struct {
	mu     sync.Mutex
	values map[string][]byte
	expiry map[string]time.Time

	getErr  error
	scanErr error
	delErr  error
}

func newStubRedisClient() *stubRedisClient {
	return &stubRedisClient{values: map[string][]byte{}, expiry: map[string]time.Time{}}
}

func (c *stubRedisClient) live(key string) bool {
	if _, ok := c.values[key]; !ok {
		return false
	}
	if exp, ok := c.expiry[key]; ok && time.Now().After(exp) {
		delete(c.values, key)
		delete(c.expiry, key)
		return false
	}
	return true
}

func (c *stubRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return redis.NewStringResult("", c.getErr)
	}
	if !c.live(key) {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(c.values[key]), nil)
}

func (c *stubRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, _ := value.([]byte)
	c.values[key] = append([]byte(nil), body...)
	if expiration > 0 {
		c.expiry[key] = time.Now().Add(expiration)
	} else {
		delete(c.expiry, key)
	}
	return redis.NewStatusResult("OK", nil)
}

func (c *stubRedisClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, key := range keys {
		if c.live(key) {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (c *stubRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delErr != nil {
		return redis.NewIntResult(0, c.delErr)
	}
	var n int64
	for _, key := range keys {
		if _, ok := c.values[key]; ok {
			n++
		}
		delete(c.values, key)
		delete(c.expiry, key)
	}
	return redis.NewIntResult(n, nil)
}

func (c *stubRedisClient) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, c.scanErr)
	}
	prefix := unescapeRedisGlob(strings.TrimSuffix(match, "*"))
	var keys []string
	for key := range c.values {
		if strings.HasPrefix(key, prefix) && c.live(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return redis.NewScanCmdResult(keys, 0, nil)
}

func unescapeRedisGlob(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

type stubNATSKeyValue struct {
	bucket string
	rev    uint64

	entries map[string]*stubNATSKeyValueEntry

	getErr    error
	putErr    error
	deleteErr error
	purgeErr  error
	listErr   error
}

func newStubNATSKeyValue(bucket string) *stubNATSKeyValue {
	return &stubNATSKeyValue{
		bucket:  bucket,
		entries: make(map[string]*stubNATSKeyValueEntry),
	}
}

func (s *stubNATSKeyValue) Get(key string) (nats.KeyValueEntry, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	if entry.op == nats.KeyValueDelete || entry.op == nats.KeyValuePurge {
		return nil, nats.ErrKeyDeleted
	}
	return entry.clone(), nil
}

func (s *stubNATSKeyValue) Put(key string, value []byte) (uint64, error) {
	if s.putErr != nil {
		return 0, s.putErr
	}
	s.rev++
	s.entries[key] = &stubNATSKeyValueEntry{
		bucket:   s.bucket,
		key:      key,
		value:    cloneBytes(value),
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValuePut,
	}
	return s.rev, nil
}

func (s *stubNATSKeyValue) Delete(key string, _ ...nats.DeleteOpt) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.rev++
	s.entries[key] = &stubNATSKeyValueEntry{
		bucket:   s.bucket,
		key:      key,
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValueDelete,
	}
	return nil
}

func (s *stubNATSKeyValue) Purge(key string, _ ...nats.DeleteOpt) error {
	if s.purgeErr != nil {
		return s.purgeErr
	}
	delete(s.entries, key)
	return nil
}

// ListKeys mirrors nats.IgnoreDeletes: delete markers are not listed.
func (s *stubNATSKeyValue) ListKeys(_ ...nats.WatchOpt) (nats.KeyLister, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if entry.op == nats.KeyValuePut {
			keys = append(keys, key)
		}
	}
	return newStubNATSKeyLister(keys), nil
}

type stubNATSKeyValueEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	delta    uint64
	op       nats.KeyValueOp
}

func (e *stubNATSKeyValueEntry) clone() *stubNATSKeyValueEntry {
	cp := *e
	cp.value = cloneBytes(e.value)
	return &cp
}

func (e *stubNATSKeyValueEntry) Bucket() string             { return e.bucket }
func (e *stubNATSKeyValueEntry) Key() string                { return e.key }
func (e *stubNATSKeyValueEntry) Value() []byte              { return cloneBytes(e.value) }
func (e *stubNATSKeyValueEntry) Revision() uint64           { return e.revision }
func (e *stubNATSKeyValueEntry) Created() time.Time         { return e.created }
func (e *stubNATSKeyValueEntry) Delta() uint64              { return e.delta }
func (e *stubNATSKeyValueEntry) Operation() nats.KeyValueOp { return e.op }

type stubNATSKeyLister struct {
	keysCh chan string
	errCh  chan error
}

func newStubNATSKeyLister(keys []string) *stubNATSKeyLister {
	keysCh := make(chan string, len(keys))
	errCh := make(chan error)
	for _, key := range keys {
		keysCh <- key
	}
	close(keysCh)
	close(errCh)
	return &stubNATSKeyLister{keysCh: keysCh, errCh: errCh}
}

func (l *stubNATSKeyLister) Keys() <-chan string { return l.keysCh }
func (l *stubNATSKeyLister) Error() <-chan error { return l.errCh }
func (l *stubNATSKeyLister) Stop() error         { return nil }

// dynStub is an in-process DynamoAPI. Scan honours the begins_with filter
// the store sends and pages through results pageSize items at a time.
type dynStub struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	batches  int
}

func newDynStub() *dynStub {
	return &dynStub{items: map[string]map[string]types.AttributeValue{}, pageSize: 2}
}

func (d *dynStub) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := in.Key["k"].(*types.AttributeValueMemberS).Value
	item, ok := d.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (d *dynStub) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := in.Item["k"].(*types.AttributeValueMemberS).Value
	d.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (d *dynStub) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := in.Key["k"].(*types.AttributeValueMemberS).Value
	delete(d.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *dynStub) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches++
	for _, writes := range in.RequestItems {
		if len(writes) > dynamoBatchWriteLimit {
			return nil, &types.ProvisionedThroughputExceededException{Message: aws.String("batch too large")}
		}
		for _, wr := range writes {
			if dr := wr.DeleteRequest; dr != nil {
				key := dr.Key["k"].(*types.AttributeValueMemberS).Value
				delete(d.items, key)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (d *dynStub) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.items))
	for k := range d.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		last := in.ExclusiveStartKey["k"].(*types.AttributeValueMemberS).Value
		start = sort.SearchStrings(keys, last) + 1
	}
	end := start + d.pageSize
	if end > len(keys) {
		end = len(keys)
	}
	prefix := ""
	if in.FilterExpression != nil {
		prefix = in.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS).Value
	}
	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out.Items = append(out.Items, map[string]types.AttributeValue{
			"k":  &types.AttributeValueMemberS{Value: k},
			"ea": d.items[k]["ea"],
		})
	}
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: keys[end-1]}}
	}
	return out, nil
}

func (d *dynStub) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func (d *dynStub) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return nil, &types.ResourceNotFoundException{}
}
