// Package registry carries the ABI metadata and revert reasons for the
// on-chain registries. It is dependency-free so both the ledger client and
// tooling can import it without pulling the full ethereum stack.
package registry

// IdentityRegistryABI matches contracts/IdentityRegistry.sol.
const IdentityRegistryABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[]},
	{"type":"function","name":"issueIdentity","stateMutability":"nonpayable","inputs":[{"name":"identityHash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"revokeIdentity","stateMutability":"nonpayable","inputs":[{"name":"identityHash","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"verifyIdentity","stateMutability":"view","inputs":[{"name":"identityHash","type":"bytes32"}],"outputs":[{"name":"exists","type":"bool"},{"name":"issuer","type":"address"},{"name":"issuedAt","type":"uint256"},{"name":"revoked","type":"bool"}]},
	{"type":"function","name":"authorizeIssuer","stateMutability":"nonpayable","inputs":[{"name":"issuer","type":"address"}],"outputs":[]},
	{"type":"function","name":"deauthorizeIssuer","stateMutability":"nonpayable","inputs":[{"name":"issuer","type":"address"}],"outputs":[]},
	{"type":"function","name":"authorizedIssuers","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"activeIdentities","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"IdentityIssued","anonymous":false,"inputs":[{"name":"identityHash","type":"bytes32","indexed":true},{"name":"issuer","type":"address","indexed":true}]},
	{"type":"event","name":"IdentityRevoked","anonymous":false,"inputs":[{"name":"identityHash","type":"bytes32","indexed":true},{"name":"revoker","type":"address","indexed":true}]},
	{"type":"event","name":"IssuerAuthorized","anonymous":false,"inputs":[{"name":"issuer","type":"address","indexed":true}]},
	{"type":"event","name":"IssuerDeauthorized","anonymous":false,"inputs":[{"name":"issuer","type":"address","indexed":true}]}
]`

// Revert reasons emitted by IdentityRegistry. The ledger client maps these
// onto typed validation errors; the strings must stay in sync with the
// require() messages in the Solidity source.
const (
	RevertIdentityNotOwner         = "IdentityRegistry: not owner"
	RevertIdentityNotAuthorized    = "IdentityRegistry: not authorized"
	RevertIdentityAlreadyExists    = "IdentityRegistry: already exists"
	RevertIdentityInvalidSignature = "IdentityRegistry: invalid signature"
	RevertIdentityNotFound         = "IdentityRegistry: not found"
	RevertIdentityAlreadyRevoked   = "IdentityRegistry: already revoked"
)

// Event names emitted by IdentityRegistry.
const (
	EventIdentityIssued  = "IdentityIssued"
	EventIdentityRevoked = "IdentityRevoked"
)
