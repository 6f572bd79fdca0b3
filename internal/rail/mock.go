package rail

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/spinforge/settlement/internal/domain"
)

// MockClient is a scriptable rail for tests. Each queued outcome is consumed
// by one Transfer call; when the queue is empty every transfer succeeds.
type MockClient struct {
	mu sync.Mutex

	// VerifyErr makes every VerifyBeneficiary call fail.
	VerifyErr error

	outcomes []mockOutcome

	VerifyCalls   []domain.PayoutDestination
	TransferCalls []TransferRequest
	TokensIssued  []string
}

type mockOutcome struct {
	result *TransferResult
	err    error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueResult scripts the next transfer outcome.
func (m *MockClient) QueueResult(result *TransferResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, mockOutcome{result: result})
}

// QueueError scripts the next transfer to fail at the network layer.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, mockOutcome{err: err})
}

func (m *MockClient) VerifyBeneficiary(ctx context.Context, dest domain.PayoutDestination) (*Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls = append(m.VerifyCalls, dest)
	if m.VerifyErr != nil {
		return nil, m.VerifyErr
	}
	token := fmt.Sprintf("ver_%s", uuid.NewString())
	m.TokensIssued = append(m.TokensIssued, token)
	name := "MOCK BENEFICIARY"
	if dest.Method == domain.PayoutMethodBank && dest.Bank != nil {
		name = dest.Bank.AccountName
	}
	return &Verification{Token: token, AccountName: name}, nil
}

func (m *MockClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransferCalls = append(m.TransferCalls, req)
	if len(m.outcomes) > 0 {
		next := m.outcomes[0]
		m.outcomes = m.outcomes[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.result, nil
	}
	return &TransferResult{
		StatusCode:     http.StatusOK,
		ResponseCode:   "00",
		TransferStatus: "success",
		RailReference:  fmt.Sprintf("RAIL-%s", uuid.NewString()),
	}, nil
}
