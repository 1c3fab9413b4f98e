// Package dynamotest provides an in-memory DynamoDB client for unit tests.
package dynamotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Fake stores items per table in a nested map: table -> hash key value -> item.
// It evaluates the expression subset the stores use: AND-joined comparisons and
// attribute_exists / attribute_not_exists in conditions, SET (with + / - and
// if_not_exists) and REMOVE in updates. Query matches a single equality key
// condition on any attribute, so GSI queries work without index definitions.
type Fake struct {
	mu     sync.Mutex
	keys   map[string]string
	tables map[string]map[string]map[string]types.AttributeValue

	// TransactErr, when set, is returned once by the next TransactWriteItems call
	// without applying anything.
	TransactErr error

	TransactCalls int

	// PageSize, when positive, caps the items a Query or Scan evaluates per
	// call. Truncated pages carry a LastEvaluatedKey like DynamoDB's 1 MB limit.
	PageSize int32
}

// New returns an empty Fake with no tables.
func New() *Fake {
	return &Fake{
		keys:   map[string]string{},
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

// CreateTable registers a table keyed by hashKey.
func (f *Fake) CreateTable(name, hashKey string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[name] = hashKey
	f.tables[name] = map[string]map[string]types.AttributeValue{}
	return f
}

// Seed marshals v with attributevalue and stores it unconditionally.
func (f *Fake) Seed(tb testing.TB, table string, v interface{}) {
	tb.Helper()
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		tb.Fatalf("seed %s: marshal: %v", table, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k, err := f.keyOf(table, item)
	if err != nil {
		tb.Fatalf("seed %s: %v", table, err)
	}
	f.tables[table][k] = clone(item)
}

// Item returns a copy of the raw item stored under key, or nil.
func (f *Fake) Item(table, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.tables[table][key])
}

// Load unmarshals the item stored under key into out. It reports whether the item exists.
func (f *Fake) Load(tb testing.TB, table, key string, out interface{}) bool {
	tb.Helper()
	item := f.Item(table, key)
	if item == nil {
		return false
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		tb.Fatalf("load %s/%s: %v", table, key, err)
	}
	return true
}

// Count returns the number of items in table.
func (f *Fake) Count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *Fake) keyOf(table string, item map[string]types.AttributeValue) (string, error) {
	attr, ok := f.keys[table]
	if !ok {
		return "", &types.ResourceNotFoundException{Message: strPtr("table not found: " + table)}
	}
	v, ok := item[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamotest: %s: missing string key %s", table, attr)
	}
	return v.Value, nil
}

func (f *Fake) check(cond *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if cond == nil || *cond == "" {
		return true, nil
	}
	return evalCondition(*cond, names, values, item)
}

func conditionFailed() *types.ConditionalCheckFailedException {
	return &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, err := f.keyOf(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: clone(f.tables[*params.TableName][k])}, nil
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	k, err := f.keyOf(table, params.Item)
	if err != nil {
		return nil, err
	}
	ok, err := f.check(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, f.tables[table][k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	f.tables[table][k] = clone(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	k, err := f.keyOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	existing := f.tables[table][k]
	ok, err := f.check(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing)
	if err != nil {
		return nil, err
	}
	if !ok {
		exc := conditionFailed()
		if params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld && existing != nil {
			exc.Item = clone(existing)
		}
		return nil, exc
	}

	updated, err := f.update(table, params.Key, existing, params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	f.tables[table][k] = updated

	out := &dyn.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = clone(updated)
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld:
		out.Attributes = clone(existing)
	}
	return out, nil
}

func (f *Fake) update(table string, key, existing map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	item := clone(existing)
	if item == nil {
		item = clone(key)
	}
	if expr == nil {
		return item, nil
	}
	if err := applyUpdate(*expr, names, values, item); err != nil {
		return nil, fmt.Errorf("%s: %w", table, err)
	}
	return item, nil
}

func (f *Fake) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	k, err := f.keyOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	existing := f.tables[table][k]
	ok, err := f.check(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	delete(f.tables[table], k)
	out := &dyn.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = clone(existing)
	}
	return out, nil
}

func (f *Fake) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	if _, ok := f.tables[table]; !ok {
		return nil, &types.ResourceNotFoundException{Message: strPtr("table not found: " + table)}
	}
	if params.KeyConditionExpression == nil {
		return nil, fmt.Errorf("dynamotest: query without key condition")
	}

	var (
		items     []map[string]types.AttributeValue
		evaluated int32
		last      map[string]types.AttributeValue
	)
	limit := f.limit(params.Limit)
	for _, item := range f.after(table, params.ExclusiveStartKey) {
		ok, err := evalCondition(*params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if limit > 0 && evaluated == limit {
			break
		}
		evaluated++
		if limit > 0 && evaluated == limit {
			last = f.keyAttr(table, item)
		}
		if ok, err = f.check(params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item); err != nil {
			return nil, err
		} else if ok {
			items = append(items, clone(item))
		}
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items)), ScannedCount: evaluated, LastEvaluatedKey: last}, nil
}

func (f *Fake) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	if _, ok := f.tables[table]; !ok {
		return nil, &types.ResourceNotFoundException{Message: strPtr("table not found: " + table)}
	}

	var (
		items     []map[string]types.AttributeValue
		evaluated int32
		last      map[string]types.AttributeValue
	)
	limit := f.limit(params.Limit)
	for _, item := range f.after(table, params.ExclusiveStartKey) {
		if limit > 0 && evaluated == limit {
			break
		}
		evaluated++
		if limit > 0 && evaluated == limit {
			last = f.keyAttr(table, item)
		}
		ok, err := f.check(params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, clone(item))
		}
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items)), ScannedCount: evaluated, LastEvaluatedKey: last}, nil
}

func (f *Fake) limit(requested *int32) int32 {
	limit := f.PageSize
	if requested != nil && *requested > 0 && (limit <= 0 || *requested < limit) {
		limit = *requested
	}
	return limit
}

// after returns the table's items in key order, starting past start's hash key.
func (f *Fake) after(table string, start map[string]types.AttributeValue) []map[string]types.AttributeValue {
	all := f.sorted(table)
	if len(start) == 0 {
		return all
	}
	from, err := f.keyOf(table, start)
	if err != nil {
		return all
	}
	i := sort.Search(len(all), func(i int) bool {
		k, _ := f.keyOf(table, all[i])
		return k > from
	})
	return all[i:]
}

func (f *Fake) keyAttr(table string, item map[string]types.AttributeValue) map[string]types.AttributeValue {
	attr := f.keys[table]
	return map[string]types.AttributeValue{attr: item[attr]}
}

func (f *Fake) sorted(table string) []map[string]types.AttributeValue {
	keys := make([]string, 0, len(f.tables[table]))
	for k := range f.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		out[i] = f.tables[table][k]
	}
	return out
}

// TransactWriteItems checks every condition before applying any write. A failed
// condition cancels the whole transaction with per-item cancellation reasons.
func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TransactCalls++
	if err := f.TransactErr; err != nil {
		f.TransactErr = nil
		return nil, err
	}

	type write struct {
		table string
		key   string
		apply func() error
	}
	writes := make([]write, 0, len(params.TransactItems))
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false

	for i, ti := range params.TransactItems {
		var (
			table, k string
			err      error
			cond     *string
			names    map[string]string
			values   map[string]types.AttributeValue
			apply    func() error
		)
		switch {
		case ti.Put != nil:
			p := ti.Put
			table, cond, names, values = *p.TableName, p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues
			if k, err = f.keyOf(table, p.Item); err != nil {
				return nil, err
			}
			tbl, key, item := table, k, clone(p.Item)
			apply = func() error { f.tables[tbl][key] = item; return nil }
		case ti.Update != nil:
			u := ti.Update
			table, cond, names, values = *u.TableName, u.ConditionExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues
			if k, err = f.keyOf(table, u.Key); err != nil {
				return nil, err
			}
			tbl, key := table, k
			apply = func() error {
				updated, err := f.update(tbl, u.Key, f.tables[tbl][key], u.UpdateExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
				if err != nil {
					return err
				}
				f.tables[tbl][key] = updated
				return nil
			}
		case ti.Delete != nil:
			d := ti.Delete
			table, cond, names, values = *d.TableName, d.ConditionExpression, d.ExpressionAttributeNames, d.ExpressionAttributeValues
			if k, err = f.keyOf(table, d.Key); err != nil {
				return nil, err
			}
			tbl, key := table, k
			apply = func() error { delete(f.tables[tbl], key); return nil }
		case ti.ConditionCheck != nil:
			c := ti.ConditionCheck
			table, cond, names, values = *c.TableName, c.ConditionExpression, c.ExpressionAttributeNames, c.ExpressionAttributeValues
			if k, err = f.keyOf(table, c.Key); err != nil {
				return nil, err
			}
			apply = func() error { return nil }
		default:
			return nil, fmt.Errorf("dynamotest: empty transact item %d", i)
		}

		for _, w := range writes {
			if w.table == table && w.key == k {
				return nil, fmt.Errorf("dynamotest: transaction touches %s/%s more than once", table, k)
			}
		}

		ok, err := f.check(cond, names, values, f.tables[table][k])
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: strPtr("None")}
		} else {
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed"), Message: strPtr("The conditional request failed")}
			failed = true
		}
		writes = append(writes, write{table: table, key: k, apply: apply})
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		if err := w.apply(); err != nil {
			return nil, err
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func strPtr(s string) *string { return &s }
