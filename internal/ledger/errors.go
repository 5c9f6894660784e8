package ledger

import (
	"strings"

	"civicledger/contracts/registry"
	dErrors "civicledger/pkg/domain-errors"
)

// revertCodes maps contract revert reasons onto coded validation errors.
// These are deterministic rejections: retrying without changing the
// request can never succeed.
var revertCodes = map[string]dErrors.Code{
	registry.RevertIdentityNotAuthorized:    dErrors.CodeNotAuthorized,
	registry.RevertIdentityNotOwner:         dErrors.CodeNotAuthorized,
	registry.RevertIdentityAlreadyExists:    dErrors.CodeAlreadyExists,
	registry.RevertIdentityInvalidSignature: dErrors.CodeInvalidSignature,
	registry.RevertIdentityNotFound:         dErrors.CodeNotFound,
	registry.RevertIdentityAlreadyRevoked:   dErrors.CodeAlreadyRevoked,

	registry.RevertContentNotAuthorized:  dErrors.CodeNotAuthorized,
	registry.RevertContentNotOwner:       dErrors.CodeNotAuthorized,
	registry.RevertContentKeyExists:      dErrors.CodeAlreadyExists,
	registry.RevertContentNotFound:       dErrors.CodeNotFound,
	registry.RevertContentAlreadyDeleted: dErrors.CodeAlreadyDeleted,
}

// TranslateRevert turns an RPC error that carries a known revert reason
// into the matching coded error. Returns nil when the error does not match
// any contract rejection, in which case the caller should treat it as a
// transport-level failure.
func TranslateRevert(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for reason, code := range revertCodes {
		if strings.Contains(msg, reason) {
			return dErrors.Wrap(code, reason, err)
		}
	}
	return nil
}
