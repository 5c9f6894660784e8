package memory

import (
	"context"
	"crypto/ecdsa"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"civicledger/internal/ledger"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
)

// Backend binds a signing key to a shared Registry and implements
// ledger.Backend. New creates fresh registries owned by the key's address;
// WithSigner yields another view over the same state for exercising
// multi-caller paths.
type Backend struct {
	reg     *Registry
	key     *ecdsa.PrivateKey
	from    common.Address
	offline atomic.Bool
}

func New(key *ecdsa.PrivateKey) *Backend {
	from := crypto.PubkeyToAddress(key.PublicKey)
	return &Backend{reg: NewRegistry(from), key: key, from: from}
}

// NewWithKey generates a throwaway key, for development wiring where no
// real chain is configured.
func NewWithKey() (*Backend, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return New(key), nil
}

// WithSigner returns a backend over the same registry state signing as a
// different key. The new signer is not authorized unless the owner
// authorizes it.
func (b *Backend) WithSigner(key *ecdsa.PrivateKey) *Backend {
	return &Backend{reg: b.reg, key: key, from: crypto.PubkeyToAddress(key.PublicKey)}
}

// Registry exposes the shared state for issuer/recorder management in
// tests and development seeding.
func (b *Backend) Registry() *Registry { return b.reg }

// SetOffline makes every subsequent call fail as node-unreachable, for
// exercising soft-failure paths.
func (b *Backend) SetOffline(offline bool) { b.offline.Store(offline) }

func (b *Backend) checkOnline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(dErrors.CodeUnavailable, "context done", err)
	}
	if b.offline.Load() {
		return dErrors.New(dErrors.CodeUnavailable, "node unreachable")
	}
	return nil
}

func (b *Backend) IssueIdentity(ctx context.Context, hash domain.Hash32) ([]byte, *ledger.TxResult, error) {
	if err := b.checkOnline(ctx); err != nil {
		return nil, nil, err
	}
	sig, err := crypto.Sign(hash[:], b.key)
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "sign identity hash", err)
	}
	txHash, block, err := b.reg.IssueIdentity(b.from, hash, sig)
	if err != nil {
		return nil, nil, err
	}
	return sig, &ledger.TxResult{TxHash: txHash, BlockNumber: block}, nil
}

func (b *Backend) RevokeIdentity(ctx context.Context, hash domain.Hash32) (*ledger.TxResult, error) {
	if err := b.checkOnline(ctx); err != nil {
		return nil, err
	}
	txHash, block, err := b.reg.RevokeIdentity(b.from, hash)
	if err != nil {
		return nil, err
	}
	return &ledger.TxResult{TxHash: txHash, BlockNumber: block}, nil
}

func (b *Backend) VerifyIdentity(ctx context.Context, hash domain.Hash32) (*ledger.IdentityState, error) {
	if err := b.checkOnline(ctx); err != nil {
		return nil, err
	}
	exists, issuer, issuedAt, revoked := b.reg.VerifyIdentity(hash)
	state := &ledger.IdentityState{Exists: exists, Revoked: revoked}
	if exists {
		state.Issuer = issuer.Hex()
		state.IssuedAt = issuedAt
	}
	return state, nil
}

func (b *Backend) RecordContent(ctx context.Context, key domain.RecordKey, contentHash, userIdentityHash domain.Hash32, contentType domain.ContentType) (*ledger.TxResult, error) {
	if err := b.checkOnline(ctx); err != nil {
		return nil, err
	}
	txHash, block, err := b.reg.RecordContent(b.from, key.Bytes32(), contentHash, userIdentityHash, contentType)
	if err != nil {
		return nil, err
	}
	return &ledger.TxResult{TxHash: txHash, BlockNumber: block}, nil
}

func (b *Backend) DeleteContent(ctx context.Context, key domain.RecordKey) (*ledger.TxResult, error) {
	if err := b.checkOnline(ctx); err != nil {
		return nil, err
	}
	txHash, block, err := b.reg.DeleteContent(b.from, key.Bytes32())
	if err != nil {
		return nil, err
	}
	return &ledger.TxResult{TxHash: txHash, BlockNumber: block}, nil
}

func (b *Backend) VerifyContent(ctx context.Context, key domain.RecordKey) (*ledger.ContentState, error) {
	if err := b.checkOnline(ctx); err != nil {
		return nil, err
	}
	exists, entry := b.reg.VerifyContent(key.Bytes32())
	if !exists {
		return &ledger.ContentState{}, nil
	}
	return &ledger.ContentState{
		Exists:           true,
		ContentHash:      entry.contentHash,
		UserIdentityHash: entry.userIdentityHash,
		Timestamp:        entry.timestamp,
		ContentType:      entry.contentType,
		IsDeleted:        entry.isDeleted,
	}, nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	if err := b.checkOnline(ctx); err != nil {
		return 0, err
	}
	return b.reg.BlockNumber(), nil
}

func (b *Backend) ChainID(ctx context.Context) (uint64, error) {
	if err := b.checkOnline(ctx); err != nil {
		return 0, err
	}
	return b.reg.ChainID(), nil
}

func (b *Backend) ContractsDeployed(ctx context.Context) (bool, error) {
	if err := b.checkOnline(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Backend) SignerAddress() string { return b.from.Hex() }

func (b *Backend) Close() {}
