package aws

import (
	"context"
	"errors"
	"fmt"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// cancellation reason code DynamoDB reports for a failed condition inside a transaction
const reasonConditionalCheckFailed = "ConditionalCheckFailed"

// TransactWrite issues a single TransactWriteItems call for items. All items are
// applied or none are.
func TransactWrite(ctx context.Context, client DynamoDBAPI, items ...types.TransactWriteItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// CancellationCodes returns the per-item cancellation codes of a canceled
// transaction. ok is false when err is not a transaction cancellation.
func CancellationCodes(err error) (codes []string, ok bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, false
	}
	codes = make([]string, len(tce.CancellationReasons))
	for i, r := range tce.CancellationReasons {
		if r.Code != nil {
			codes[i] = *r.Code
		}
	}
	return codes, true
}

// IsTransactionCanceled reports whether err is a canceled transaction.
func IsTransactionCanceled(err error) bool {
	_, ok := CancellationCodes(err)
	return ok
}

// ConditionFailedAt reports whether the item at index idx of a canceled
// transaction failed its condition expression.
func ConditionFailedAt(err error, idx int) bool {
	codes, ok := CancellationCodes(err)
	if !ok || idx < 0 || idx >= len(codes) {
		return false
	}
	return codes[idx] == reasonConditionalCheckFailed
}

// IsConditionFailed reports whether err is a failed condition on a single-item write.
func IsConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
