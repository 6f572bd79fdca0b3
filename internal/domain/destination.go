package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BankDestination describes a bank-rail beneficiary.
type BankDestination struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	AccountName   string `json:"account_name"`
}

// CryptoDestination describes a crypto-rail beneficiary.
type CryptoDestination struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

// PayoutDestination is the tagged union of supported payout methods. Exactly
// one leg is set for a configured destination; the zero value means no
// destination has been configured yet.
type PayoutDestination struct {
	Method string             `json:"method"`
	Bank   *BankDestination   `json:"bank,omitempty"`
	Crypto *CryptoDestination `json:"crypto,omitempty"`
}

// Configured reports whether the destination is usable for the given method.
func (d PayoutDestination) Configured(method string) bool {
	if d.Method != method {
		return false
	}
	switch method {
	case PayoutMethodBank:
		return d.Bank != nil && d.Bank.AccountNumber != "" && d.Bank.BankCode != ""
	case PayoutMethodCrypto:
		return d.Crypto != nil && d.Crypto.Address != ""
	default:
		return false
	}
}

// Validate enforces the union invariant. It is called when a destination is
// set via the API and again when one is decoded from storage.
func (d PayoutDestination) Validate() error {
	switch d.Method {
	case PayoutMethodBank:
		if d.Crypto != nil {
			return errors.New("bank destination must not carry a crypto leg")
		}
		if d.Bank == nil {
			return errors.New("bank destination payload is required")
		}
		if strings.TrimSpace(d.Bank.AccountNumber) == "" {
			return errors.New("bank.account_number is required")
		}
		if strings.TrimSpace(d.Bank.BankCode) == "" {
			return errors.New("bank.bank_code is required")
		}
		return nil
	case PayoutMethodCrypto:
		if d.Bank != nil {
			return errors.New("crypto destination must not carry a bank leg")
		}
		if d.Crypto == nil {
			return errors.New("crypto destination payload is required")
		}
		if strings.TrimSpace(d.Crypto.Address) == "" {
			return errors.New("crypto.address is required")
		}
		if strings.TrimSpace(d.Crypto.Network) == "" {
			return errors.New("crypto.network is required")
		}
		return nil
	case "":
		return errors.New("destination method is required")
	default:
		return fmt.Errorf("unsupported payout method: %s", d.Method)
	}
}

// DecodeDestination parses a stored destination, validating the union at the
// storage boundary. Empty input yields the unconfigured zero value.
func DecodeDestination(raw []byte) (PayoutDestination, error) {
	var d PayoutDestination
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("decode payout destination: %w", err)
	}
	if d.Method == "" && d.Bank == nil && d.Crypto == nil {
		return PayoutDestination{}, nil
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("stored payout destination invalid: %w", err)
	}
	return d, nil
}

// Snapshot renders the destination as a plain map for journal metadata, so
// later rail attempts run against the beneficiary the debit was taken for.
func (d PayoutDestination) Snapshot() (map[string]any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode payout destination: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode payout destination: %w", err)
	}
	return out, nil
}

// Label renders a short human-readable beneficiary string for metadata and
// rail calls.
func (d PayoutDestination) Label() string {
	switch d.Method {
	case PayoutMethodBank:
		if d.Bank == nil {
			return ""
		}
		if d.Bank.AccountName == "" {
			return d.Bank.AccountNumber
		}
		return fmt.Sprintf("%s (%s)", d.Bank.AccountName, d.Bank.AccountNumber)
	case PayoutMethodCrypto:
		if d.Crypto == nil {
			return ""
		}
		return fmt.Sprintf("%s/%s", d.Crypto.Network, d.Crypto.Address)
	default:
		return ""
	}
}
