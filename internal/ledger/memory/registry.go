// Package memory executes the registry contracts as in-process state
// machines. It backs tests and single-node development; semantics match
// the Solidity sources, including the distinct rejection per violated
// precondition.
package memory

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"civicledger/contracts/registry"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
)

type identityEntry struct {
	issuer    common.Address
	issuedAt  time.Time
	revoked   bool
	signature []byte
}

type contentEntry struct {
	contentHash      domain.Hash32
	userIdentityHash domain.Hash32
	timestamp        time.Time
	contentType      domain.ContentType
	isDeleted        bool
}

// Registry holds both contract states plus enough chain metadata (block
// counter, chain id) for the backend to answer health queries. All methods
// take the caller address explicitly, mirroring msg.sender.
type Registry struct {
	mu sync.Mutex

	owner     common.Address
	issuers   map[common.Address]bool
	recorders map[common.Address]bool

	identities map[domain.Hash32]*identityEntry
	contents   map[[32]byte]*contentEntry

	activeIdentities uint64
	totalRecords     uint64
	blockNum         uint64
	chainID          uint64
}

// NewRegistry deploys fresh registries with the owner authorized as both
// issuer and recorder, as the contract constructors do.
func NewRegistry(owner common.Address) *Registry {
	return &Registry{
		owner:      owner,
		issuers:    map[common.Address]bool{owner: true},
		recorders:  map[common.Address]bool{owner: true},
		identities: make(map[domain.Hash32]*identityEntry),
		contents:   make(map[[32]byte]*contentEntry),
		blockNum:   1,
		chainID:    1337,
	}
}

func (r *Registry) IssueIdentity(caller common.Address, hash domain.Hash32, sig []byte) (string, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.issuers[caller] {
		return "", 0, dErrors.New(dErrors.CodeNotAuthorized, registry.RevertIdentityNotAuthorized)
	}
	if _, ok := r.identities[hash]; ok {
		return "", 0, dErrors.New(dErrors.CodeAlreadyExists, registry.RevertIdentityAlreadyExists)
	}
	signer, err := recoverSigner(hash, sig)
	if err != nil || signer != caller {
		return "", 0, dErrors.New(dErrors.CodeInvalidSignature, registry.RevertIdentityInvalidSignature)
	}

	r.identities[hash] = &identityEntry{
		issuer:    caller,
		issuedAt:  time.Now().UTC(),
		signature: append([]byte(nil), sig...),
	}
	r.activeIdentities++
	return r.mineTx(hash[:])
}

func (r *Registry) RevokeIdentity(caller common.Address, hash domain.Hash32) (string, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.identities[hash]
	if !ok {
		return "", 0, dErrors.New(dErrors.CodeNotFound, registry.RevertIdentityNotFound)
	}
	if entry.revoked {
		return "", 0, dErrors.New(dErrors.CodeAlreadyRevoked, registry.RevertIdentityAlreadyRevoked)
	}
	if caller != entry.issuer && caller != r.owner {
		return "", 0, dErrors.New(dErrors.CodeNotAuthorized, registry.RevertIdentityNotAuthorized)
	}

	entry.revoked = true
	r.activeIdentities--
	return r.mineTx(hash[:])
}

func (r *Registry) VerifyIdentity(hash domain.Hash32) (exists bool, issuer common.Address, issuedAt time.Time, revoked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.identities[hash]
	if !ok {
		return false, common.Address{}, time.Time{}, false
	}
	return true, entry.issuer, entry.issuedAt, entry.revoked
}

func (r *Registry) RecordContent(caller common.Address, key [32]byte, contentHash, userIdentityHash domain.Hash32, contentType domain.ContentType) (string, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recorders[caller] {
		return "", 0, dErrors.New(dErrors.CodeNotAuthorized, registry.RevertContentNotAuthorized)
	}
	if _, ok := r.contents[key]; ok {
		return "", 0, dErrors.New(dErrors.CodeAlreadyExists, registry.RevertContentKeyExists)
	}

	r.contents[key] = &contentEntry{
		contentHash:      contentHash,
		userIdentityHash: userIdentityHash,
		timestamp:        time.Now().UTC(),
		contentType:      contentType,
	}
	r.totalRecords++
	return r.mineTx(key[:])
}

func (r *Registry) DeleteContent(caller common.Address, key [32]byte) (string, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recorders[caller] {
		return "", 0, dErrors.New(dErrors.CodeNotAuthorized, registry.RevertContentNotAuthorized)
	}
	entry, ok := r.contents[key]
	if !ok {
		return "", 0, dErrors.New(dErrors.CodeNotFound, registry.RevertContentNotFound)
	}
	if entry.isDeleted {
		return "", 0, dErrors.New(dErrors.CodeAlreadyDeleted, registry.RevertContentAlreadyDeleted)
	}

	entry.isDeleted = true
	return r.mineTx(key[:])
}

func (r *Registry) VerifyContent(key [32]byte) (bool, *contentEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.contents[key]
	if !ok {
		return false, nil
	}
	cp := *entry
	return true, &cp
}

func (r *Registry) AuthorizeIssuer(caller, issuer common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return dErrors.New(dErrors.CodeNotAuthorized, registry.RevertIdentityNotOwner)
	}
	r.issuers[issuer] = true
	return nil
}

func (r *Registry) DeauthorizeIssuer(caller, issuer common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return dErrors.New(dErrors.CodeNotAuthorized, registry.RevertIdentityNotOwner)
	}
	r.issuers[issuer] = false
	return nil
}

func (r *Registry) AuthorizeRecorder(caller, recorder common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return dErrors.New(dErrors.CodeNotAuthorized, registry.RevertContentNotOwner)
	}
	r.recorders[recorder] = true
	return nil
}

// ActiveIdentities mirrors the contract's running count of non-revoked
// identities.
func (r *Registry) ActiveIdentities() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeIdentities
}

// TotalRecords mirrors the content registry's running total.
func (r *Registry) TotalRecords() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalRecords
}

func (r *Registry) BlockNumber() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blockNum
}

func (r *Registry) ChainID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chainID
}

// mineTx advances the block counter and derives a deterministic tx hash.
// Callers hold r.mu.
func (r *Registry) mineTx(seed []byte) (string, uint64, error) {
	r.blockNum++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], r.blockNum)
	txHash := crypto.Keccak256Hash(seed, nonce[:])
	return txHash.Hex(), r.blockNum, nil
}

func recoverSigner(hash domain.Hash32, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidSignature, registry.RevertIdentityInvalidSignature)
	}
	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
