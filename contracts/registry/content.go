package registry

// ContentRegistryABI matches contracts/ContentRegistry.sol.
const ContentRegistryABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[]},
	{"type":"function","name":"recordContent","stateMutability":"nonpayable","inputs":[{"name":"recordKey","type":"bytes32"},{"name":"contentHash","type":"bytes32"},{"name":"userIdentityHash","type":"bytes32"},{"name":"contentType","type":"string"}],"outputs":[]},
	{"type":"function","name":"deleteContent","stateMutability":"nonpayable","inputs":[{"name":"recordKey","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"verifyContent","stateMutability":"view","inputs":[{"name":"recordKey","type":"bytes32"}],"outputs":[{"name":"exists","type":"bool"},{"name":"contentHash","type":"bytes32"},{"name":"userIdentityHash","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"contentType","type":"string"},{"name":"isDeleted","type":"bool"}]},
	{"type":"function","name":"authorizeRecorder","stateMutability":"nonpayable","inputs":[{"name":"recorder","type":"address"}],"outputs":[]},
	{"type":"function","name":"deauthorizeRecorder","stateMutability":"nonpayable","inputs":[{"name":"recorder","type":"address"}],"outputs":[]},
	{"type":"function","name":"authorizedRecorders","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"totalRecords","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"ContentRecorded","anonymous":false,"inputs":[{"name":"recordKey","type":"bytes32","indexed":true},{"name":"userIdentityHash","type":"bytes32","indexed":true},{"name":"contentHash","type":"bytes32","indexed":false},{"name":"contentType","type":"string","indexed":false}]},
	{"type":"event","name":"ContentDeleted","anonymous":false,"inputs":[{"name":"recordKey","type":"bytes32","indexed":true}]},
	{"type":"event","name":"RecorderAuthorized","anonymous":false,"inputs":[{"name":"recorder","type":"address","indexed":true}]},
	{"type":"event","name":"RecorderDeauthorized","anonymous":false,"inputs":[{"name":"recorder","type":"address","indexed":true}]}
]`

// Revert reasons emitted by ContentRegistry.
const (
	RevertContentNotOwner       = "ContentRegistry: not owner"
	RevertContentNotAuthorized  = "ContentRegistry: not authorized"
	RevertContentKeyExists      = "ContentRegistry: key already exists"
	RevertContentNotFound       = "ContentRegistry: not found"
	RevertContentAlreadyDeleted = "ContentRegistry: already deleted"
)

// Event names emitted by ContentRegistry.
const (
	EventContentRecorded = "ContentRecorded"
	EventContentDeleted  = "ContentDeleted"
)
