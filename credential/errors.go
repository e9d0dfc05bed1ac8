package credential

import "errors"

// Verification failures map one-to-one onto the reason strings relying
// hospitals see. No generic failures; every denial names its cause.
var (
	ErrMalformedCredential     = errors.New("MalformedCredential")
	ErrInvalidSignature        = errors.New("InvalidSignature")
	ErrExpiredCredential       = errors.New("ExpiredCredential")
	ErrRevokedCredential       = errors.New("RevokedCredential")
	ErrUnauthorizedHospital    = errors.New("UnauthorizedHospital")
	ErrInsufficientPermissions = errors.New("InsufficientPermissions")
	ErrIdentityResolution      = errors.New("IdentityResolutionFailure")

	ErrIdentityNotFound = errors.New("IdentityNotFound")
)
