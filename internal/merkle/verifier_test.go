package merkle

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewards-settlement/internal/types"
)

// fakeChainClient answers hasExpired() and isClaimed(index) contract reads
// from in-memory state.
type fakeChainClient struct {
	expired bool
	claimed map[int]bool
	callErr error
}

func (f *fakeChainClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	boolWord := func(v bool) []byte {
		out := make([]byte, 32)
		if v {
			out[31] = 1
		}
		return out
	}
	if bytes.HasPrefix(msg.Data, hasExpiredSelector) {
		return boolWord(f.expired), nil
	}
	if bytes.HasPrefix(msg.Data, isClaimedSelector) {
		index := int(new(big.Int).SetBytes(msg.Data[4:]).Int64())
		return boolWord(f.claimed[index]), nil
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeChainClient) FilterLogs(context.Context, ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChainClient) TransactionByHash(context.Context, common.Hash) (*ethtypes.Transaction, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (f *fakeChainClient) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChainClient) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChainClient) BlockNumber(context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

const (
	walletA  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	walletC  = "0xcccccccccccccccccccccccccccccccccccccccc"
	contract = "0x1111111111111111111111111111111111111111"
)

func verifierExport(t *testing.T) *Export {
	t.Helper()
	tree, err := NewTree([]Recipient{
		{Address: walletA, Amount: "100"},
		{Address: walletB, Amount: "250"},
	})
	require.NoError(t, err)
	return tree.Export()
}

func TestCheckEligibility_Eligible(t *testing.T) {
	client := &fakeChainClient{claimed: map[int]bool{}}
	verifier := NewVerifier(client)

	result, err := verifier.CheckEligibility(context.Background(), walletA, contract, types.ChainBase, verifierExport(t))
	require.NoError(t, err)

	assert.Equal(t, ReasonEligible, result.Reason)
	assert.True(t, result.Eligible())
	assert.Equal(t, 0, result.Index)
	assert.Equal(t, "100", result.Amount)
	assert.NotEmpty(t, result.Proof)
}

func TestCheckEligibility_AlreadyClaimed(t *testing.T) {
	client := &fakeChainClient{claimed: map[int]bool{1: true}}
	verifier := NewVerifier(client)

	result, err := verifier.CheckEligibility(context.Background(), walletB, contract, types.ChainBase, verifierExport(t))
	require.NoError(t, err)

	assert.Equal(t, ReasonAlreadyClaimed, result.Reason)
	assert.Empty(t, result.Proof)
}

func TestCheckEligibility_NotEligible(t *testing.T) {
	client := &fakeChainClient{claimed: map[int]bool{}}
	verifier := NewVerifier(client)

	result, err := verifier.CheckEligibility(context.Background(), walletC, contract, types.ChainBase, verifierExport(t))
	require.NoError(t, err)

	assert.Equal(t, ReasonNotEligible, result.Reason)
}

func TestCheckEligibility_Expired(t *testing.T) {
	client := &fakeChainClient{expired: true, claimed: map[int]bool{}}
	verifier := NewVerifier(client)

	result, err := verifier.CheckEligibility(context.Background(), walletA, contract, types.ChainBase, verifierExport(t))
	require.NoError(t, err)

	// Expiry is checked before membership, so even listed wallets see expired.
	assert.Equal(t, ReasonExpired, result.Reason)
}

func TestCheckEligibility_RPCFailureIsAnError(t *testing.T) {
	client := &fakeChainClient{callErr: errors.New("rpc down")}
	verifier := NewVerifier(client)

	_, err := verifier.CheckEligibility(context.Background(), walletA, contract, types.ChainBase, verifierExport(t))
	assert.Error(t, err)
}

func TestCheckEligibility_InvalidInputs(t *testing.T) {
	verifier := NewVerifier(&fakeChainClient{})

	_, err := verifier.CheckEligibility(context.Background(), "bogus", contract, types.ChainBase, verifierExport(t))
	assert.Error(t, err)

	_, err = verifier.CheckEligibility(context.Background(), walletA, "bogus", types.ChainBase, verifierExport(t))
	assert.Error(t, err)

	_, err = verifier.CheckEligibility(context.Background(), walletA, contract, types.ChainID(999), verifierExport(t))
	assert.Error(t, err)
}
