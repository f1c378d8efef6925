package gateway

import (
	"errors"
	"time"

	"github.com/pquerna/otp/totp"
)

// ErrUnauthorized is returned when a gated control message carries no valid code.
var ErrUnauthorized = errors.New("invalid or missing TOTP code")

// ControlAuth gates control commands behind a TOTP code. A zero secret
// leaves the control plane open.
type ControlAuth struct {
	secret string
	now    func() time.Time
}

// NewControlAuth creates a gate for the given base32 TOTP secret.
func NewControlAuth(secret string) *ControlAuth {
	return &ControlAuth{secret: secret, now: time.Now}
}

// Enabled reports whether codes are required.
func (a *ControlAuth) Enabled() bool {
	return a != nil && a.secret != ""
}

// Check validates code against the current 30 s window (±1 step of skew).
func (a *ControlAuth) Check(code string) error {
	if !a.Enabled() {
		return nil
	}
	ok, err := totp.ValidateCustom(code, a.secret, a.now().UTC(), totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	if err != nil || !ok {
		return ErrUnauthorized
	}
	return nil
}
