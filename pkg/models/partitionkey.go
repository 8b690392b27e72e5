package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/stranddb/strand.go/pkg/constants"
)

// PartitionKey is a single logical partition key value. The service
// currently accepts strings, booleans, numbers and null.
type PartitionKey struct {
	value any
}

func NewPartitionKey(value any) PartitionKey {
	return PartitionKey{value: value}
}

func NewPartitionKeyString(value string) PartitionKey {
	return PartitionKey{value: value}
}

// Value returns the raw partition key value.
func (pk PartitionKey) Value() any {
	return pk.value
}

// MarshalJSON encodes the key the way it travels in request headers.
func (pk PartitionKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.value)
}

// PartitionKeyHasher derives the canonical feed range for a partition
// key value. The real hashing scheme is owned by the service; the SDK
// only requires that client and service agree on one implementation.
type PartitionKeyHasher interface {
	FeedRange(pk PartitionKey) (FeedRange, error)
}

// HasherV1 is the version 1 hash-to-range derivation. It maps a
// partition key onto a single one-byte effective partition key in
// [00, FE], so every derived range is a point range strictly inside
// the full hash space.
type HasherV1 struct{}

func (HasherV1) FeedRange(pk PartitionKey) (FeedRange, error) {
	canonical, err := canonicalPartitionKeyBytes(pk.value)
	if err != nil {
		return FeedRange{}, err
	}

	sum := sha256.Sum256(canonical)
	// 0xFF is the upper-bound sentinel of the hash space and must never
	// be produced as an effective partition key.
	epk := fmt.Sprintf("%02X", sum[0]%0xFF)

	return FeedRange{
		Min:            epk,
		Max:            epk,
		IsMinInclusive: true,
		IsMaxInclusive: true,
	}, nil
}

func canonicalPartitionKeyBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return append([]byte("s:"), v...), nil
	case bool:
		return []byte(fmt.Sprintf("b:%t", v)), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return []byte(fmt.Sprintf("n:%v", v)), nil
	default:
		return nil, fmt.Errorf("%w: unsupported partition key type %T", constants.ErrInvalidArgument, value)
	}
}

// NewFeedRangeFromPartitionKey derives the feed range a partition key
// value maps to under the given hasher.
func NewFeedRangeFromPartitionKey(pk PartitionKey, hasher PartitionKeyHasher) (FeedRange, error) {
	if hasher == nil {
		hasher = HasherV1{}
	}
	return hasher.FeedRange(pk)
}
