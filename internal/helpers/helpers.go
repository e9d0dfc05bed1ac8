package helpers

import (
	"crypto/rand"
	"encoding/hex"
	mrand "math/rand"

	"github.com/labstack/echo/v4"
)

var letters = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890")

func InputError(e echo.Context, custom *string) error {
	msg := "InvalidRequest"
	if custom != nil {
		msg = *custom
	}
	return genericError(e, 400, msg)
}

func AuthError(e echo.Context, custom *string) error {
	msg := "Unauthorized"
	if custom != nil {
		msg = *custom
	}
	return genericError(e, 401, msg)
}

func ServerError(e echo.Context, suffix *string) error {
	msg := "Internal server error"
	if suffix != nil {
		msg += ". " + *suffix
	}
	return genericError(e, 500, msg)
}

func genericError(e echo.Context, code int, msg string) error {
	return e.JSON(code, map[string]string{
		"error": msg,
	})
}

func RandomVarchar(length int) string {
	b := make([]rune, length)
	for i := range b {
		b[i] = letters[mrand.Intn(len(letters))]
	}
	return string(b)
}

// SecureToken returns length*2 hex chars from the system CSPRNG. Used for
// next-of-kin verification codes, where guessability matters.
func SecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// TruncateForAudit trims sensitive material down to a short preview so audit
// rows never carry a full credential or key.
func TruncateForAudit(s string) string {
	if len(s) <= 24 {
		return s
	}
	return s[:24] + "..."
}
