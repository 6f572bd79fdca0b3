package service

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

// metadataDecimal reads a decimal stored as a string (or a raw JSON number)
// from journal metadata.
func metadataDecimal(m models.Metadata, key string) (decimal.Decimal, error) {
	raw, ok := m[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("metadata key %q missing", key)
	}
	switch v := raw.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	default:
		return decimal.Zero, fmt.Errorf("metadata key %q has unexpected type %T", key, raw)
	}
}

func metadataInt(m models.Metadata, key string) int {
	raw, ok := m[key]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

func metadataBool(m models.Metadata, key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}

// destinationFromMetadata rebuilds the beneficiary snapshot stored when the
// withdrawal was accepted, so later rail attempts use the descriptor the
// user was debited against.
func destinationFromMetadata(m models.Metadata) (domain.PayoutDestination, error) {
	raw, ok := m["beneficiary"]
	if !ok {
		return domain.PayoutDestination{}, fmt.Errorf("beneficiary metadata missing")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return domain.PayoutDestination{}, fmt.Errorf("encode beneficiary metadata: %w", err)
	}
	return domain.DecodeDestination(encoded)
}
