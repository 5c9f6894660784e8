// Package evm implements the ledger backend against an EVM-compatible
// proof-of-authority node over JSON-RPC.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"civicledger/contracts/registry"
	"civicledger/internal/ledger"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
)

// Config carries everything needed to reach the deployed registries.
type Config struct {
	RPCURL               string
	SignerKeyHex         string
	IdentityRegistryAddr string
	ContentRegistryAddr  string
}

// Backend talks to the two registry contracts. It holds the signing key;
// nothing above this layer ever sees it.
type Backend struct {
	client *ethclient.Client
	key    *ecdsa.PrivateKey
	from   common.Address

	chainID *big.Int

	identityABI  abi.ABI
	contentABI   abi.ABI
	identityAddr common.Address
	contentAddr  common.Address
}

// Dial connects to the node, loads the signing key, and resolves the chain
// id used for transaction signing.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc node: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	identityABI, err := abi.JSON(strings.NewReader(registry.IdentityRegistryABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse identity registry abi: %w", err)
	}
	contentABI, err := abi.JSON(strings.NewReader(registry.ContentRegistryABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse content registry abi: %w", err)
	}

	if !common.IsHexAddress(cfg.IdentityRegistryAddr) || !common.IsHexAddress(cfg.ContentRegistryAddr) {
		client.Close()
		return nil, fmt.Errorf("invalid registry contract address")
	}

	return &Backend{
		client:       client,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		identityABI:  identityABI,
		contentABI:   contentABI,
		identityAddr: common.HexToAddress(cfg.IdentityRegistryAddr),
		contentAddr:  common.HexToAddress(cfg.ContentRegistryAddr),
	}, nil
}

func (b *Backend) IssueIdentity(ctx context.Context, hash domain.Hash32) ([]byte, *ledger.TxResult, error) {
	sig, err := crypto.Sign(hash[:], b.key)
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "sign identity hash", err)
	}
	tx, err := b.transact(ctx, b.identityAddr, b.identityABI, "issueIdentity", [32]byte(hash), sig)
	if err != nil {
		return nil, nil, err
	}
	return sig, tx, nil
}

func (b *Backend) RevokeIdentity(ctx context.Context, hash domain.Hash32) (*ledger.TxResult, error) {
	return b.transact(ctx, b.identityAddr, b.identityABI, "revokeIdentity", [32]byte(hash))
}

func (b *Backend) VerifyIdentity(ctx context.Context, hash domain.Hash32) (*ledger.IdentityState, error) {
	out, err := b.call(ctx, b.identityAddr, b.identityABI, "verifyIdentity", [32]byte(hash))
	if err != nil {
		return nil, err
	}
	state := &ledger.IdentityState{
		Exists:  out[0].(bool),
		Issuer:  out[1].(common.Address).Hex(),
		Revoked: out[3].(bool),
	}
	if issuedAt := out[2].(*big.Int); issuedAt.Sign() > 0 {
		state.IssuedAt = time.Unix(issuedAt.Int64(), 0).UTC()
	}
	return state, nil
}

func (b *Backend) RecordContent(ctx context.Context, key domain.RecordKey, contentHash, userIdentityHash domain.Hash32, contentType domain.ContentType) (*ledger.TxResult, error) {
	return b.transact(ctx, b.contentAddr, b.contentABI, "recordContent",
		key.Bytes32(), [32]byte(contentHash), [32]byte(userIdentityHash), contentType.String())
}

func (b *Backend) DeleteContent(ctx context.Context, key domain.RecordKey) (*ledger.TxResult, error) {
	return b.transact(ctx, b.contentAddr, b.contentABI, "deleteContent", key.Bytes32())
}

func (b *Backend) VerifyContent(ctx context.Context, key domain.RecordKey) (*ledger.ContentState, error) {
	out, err := b.call(ctx, b.contentAddr, b.contentABI, "verifyContent", key.Bytes32())
	if err != nil {
		return nil, err
	}
	state := &ledger.ContentState{
		Exists:           out[0].(bool),
		ContentHash:      domain.Hash32(out[1].([32]byte)),
		UserIdentityHash: domain.Hash32(out[2].([32]byte)),
		ContentType:      domain.ContentType(out[4].(string)),
		IsDeleted:        out[5].(bool),
	}
	if ts := out[3].(*big.Int); ts.Sign() > 0 {
		state.Timestamp = time.Unix(ts.Int64(), 0).UTC()
	}
	return state, nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := b.client.BlockNumber(ctx)
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeUnavailable, "query block number", err)
	}
	return n, nil
}

func (b *Backend) ChainID(ctx context.Context) (uint64, error) {
	return b.chainID.Uint64(), nil
}

// ContractsDeployed checks that code is present at both registry
// addresses, distinguishing "node up, contracts missing" from "node down".
func (b *Backend) ContractsDeployed(ctx context.Context) (bool, error) {
	for _, addr := range []common.Address{b.identityAddr, b.contentAddr} {
		code, err := b.client.CodeAt(ctx, addr, nil)
		if err != nil {
			return false, dErrors.Wrap(dErrors.CodeUnavailable, "query contract code", err)
		}
		if len(code) == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (b *Backend) SignerAddress() string {
	return b.from.Hex()
}

func (b *Backend) Close() {
	b.client.Close()
}

// transact packs, estimates, signs, submits, and waits for inclusion.
// Gas estimation runs the call against current state, so contract
// validation failures (already-exists, not-authorized, ...) surface here
// as coded errors before anything is submitted. A receipt with a failed
// status after inclusion is the non-deterministic case and maps to
// CodeTxFailed instead.
func (b *Backend) transact(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) (*ledger.TxResult, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "pack "+method, err)
	}

	nonce, err := b.client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "query nonce", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "query gas price", err)
	}

	gas, err := b.client.EstimateGas(ctx, ethereum.CallMsg{From: b.from, To: &to, Data: data})
	if err != nil {
		if coded := ledger.TranslateRevert(err); coded != nil {
			return nil, coded
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "estimate gas for "+method, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas + gas/5, // headroom over the estimate
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "sign transaction", err)
	}

	if err := b.client.SendTransaction(ctx, signed); err != nil {
		if coded := ledger.TranslateRevert(err); coded != nil {
			return nil, coded
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "submit "+method, err)
	}

	receipt, err := bind.WaitMined(ctx, b.client, signed)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "wait for inclusion of "+method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, dErrors.Newf(dErrors.CodeTxFailed, "%s reverted in block %d (tx %s)",
			method, receipt.BlockNumber.Uint64(), signed.Hash().Hex())
	}

	return &ledger.TxResult{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (b *Backend) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "pack "+method, err)
	}
	out, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "call "+method, err)
	}
	vals, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "unpack "+method, err)
	}
	return vals, nil
}
