package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRates() Rates {
	return Rates{
		Deposit:    decimal.NewFromInt(1500),
		Withdrawal: decimal.NewFromInt(1450),
	}
}

func TestToPlatformDepositRate(t *testing.T) {
	rates := testRates()

	got := rates.ToPlatform(decimal.NewFromInt(15000))
	assert.True(t, got.Equal(decimal.NewFromInt(10)), "15000 settlement at rate 1500 should credit 10.00, got %s", got)

	got = rates.ToPlatform(decimal.NewFromInt(1000))
	assert.Equal(t, "0.67", got.StringFixed(2))
}

func TestToSettlementWithdrawalRate(t *testing.T) {
	rates := testRates()

	got := rates.ToSettlement(decimal.NewFromInt(70))
	assert.True(t, got.Equal(decimal.NewFromInt(101500)), "70 platform at rate 1450 should be 101500, got %s", got)

	got = rates.ToSettlement(decimal.NewFromInt(65))
	assert.True(t, got.Equal(decimal.NewFromInt(94250)))
}

func TestRatesAsymmetry(t *testing.T) {
	rates := testRates()

	// A round trip through both rates must not be free for the user.
	oneHundred := decimal.NewFromInt(100)
	settlement := rates.ToSettlement(oneHundred)
	back := rates.ToPlatform(settlement)
	assert.True(t, back.LessThan(oneHundred), "round trip should cost the spread, got %s", back)
}

func TestDestinationValidate(t *testing.T) {
	bank := PayoutDestination{
		Method: PayoutMethodBank,
		Bank:   &BankDestination{AccountNumber: "0123456789", BankCode: "058", AccountName: "A. Bettor"},
	}
	require.NoError(t, bank.Validate())
	assert.True(t, bank.Configured(PayoutMethodBank))
	assert.False(t, bank.Configured(PayoutMethodCrypto))

	crypto := PayoutDestination{
		Method: PayoutMethodCrypto,
		Crypto: &CryptoDestination{Address: "0xabc", Network: "TRON"},
	}
	require.NoError(t, crypto.Validate())

	assert.Error(t, PayoutDestination{Method: PayoutMethodBank}.Validate())
	assert.Error(t, PayoutDestination{Method: "cheque"}.Validate())
	assert.Error(t, PayoutDestination{Method: PayoutMethodBank, Bank: &BankDestination{AccountNumber: "1"}, Crypto: &CryptoDestination{Address: "x"}}.Validate())
}

func TestDecodeDestination(t *testing.T) {
	d, err := DecodeDestination(nil)
	require.NoError(t, err)
	assert.False(t, d.Configured(PayoutMethodBank))

	d, err = DecodeDestination([]byte(`{"method":"bank_account","bank":{"account_number":"0123456789","bank_code":"058","account_name":"A. Bettor"}}`))
	require.NoError(t, err)
	assert.Equal(t, "A. Bettor (0123456789)", d.Label())

	_, err = DecodeDestination([]byte(`{"method":"bank_account"}`))
	assert.Error(t, err)
}
