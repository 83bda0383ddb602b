package activity

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidTransaction indicates that a transaction envelope cannot be used.
var ErrInvalidTransaction = errors.New("activity: invalid transaction")

// Timestamp is a nanosecond unix timestamp. The node encodes it either as a
// JSON string or as a number.
type Timestamp int64

// UnmarshalJSON accepts both quoted and bare integers.
func (ts *Timestamp) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*ts = 0
		return nil
	}
	trimmed = bytes.Trim(trimmed, `"`)
	if len(trimmed) == 0 {
		*ts = 0
		return nil
	}
	value, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp %q", ErrInvalidTransaction, string(raw))
	}
	*ts = Timestamp(value)
	return nil
}

// MarshalJSON writes the timestamp as a quoted integer, matching the node.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatInt(int64(ts), 10) + `"`), nil
}

// Int64 exposes the raw nanosecond value.
func (ts Timestamp) Int64() int64 {
	return int64(ts)
}

// Transaction is one signed entry of the remote log. It is immutable once
// received; arrival order is unreliable and duplicates are possible.
type Transaction struct {
	TrxID        string              `json:"TrxId"`
	GroupID      string              `json:"GroupId"`
	SenderPubkey string              `json:"SenderPubkey"`
	TimeStamp    Timestamp           `json:"TimeStamp"`
	Data         jsoniter.RawMessage `json:"Data"`
}

// Validate checks the envelope fields every reducer relies on.
func (trx Transaction) Validate() error {
	if _, err := ValidateTrxID(trx.TrxID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if _, err := NewGroupID(trx.GroupID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return nil
}

// Encode serializes the transaction for verbatim storage.
func (trx Transaction) Encode() (string, error) {
	encoded, err := json.Marshal(trx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return string(encoded), nil
}

// DecodeTransaction parses a stored or fetched transaction.
func DecodeTransaction(raw []byte) (Transaction, error) {
	var trx Transaction
	if err := json.Unmarshal(raw, &trx); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if err := trx.Validate(); err != nil {
		return Transaction{}, err
	}
	return trx, nil
}

// DecodeTransactions parses a node content response body.
func DecodeTransactions(raw []byte) ([]Transaction, error) {
	var items []Transaction
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return items, nil
}

// SortByTimestamp orders transactions by timestamp, breaking ties by trx id so
// that the order is deterministic regardless of arrival order.
func SortByTimestamp(items []Transaction) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].TimeStamp != items[j].TimeStamp {
			return items[i].TimeStamp < items[j].TimeStamp
		}
		return items[i].TrxID < items[j].TrxID
	})
}
