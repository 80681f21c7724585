// Package arming guards real-money trading behind a one-time password.
// A bot started in real mode refuses to trade until the operator presents a
// valid TOTP code for the configured secret.
package arming

import (
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	// ErrNotArmed is returned when real mode is requested without a code.
	ErrNotArmed = errors.New("real trading requires an arming code")
	// ErrInvalidCode is returned when the code does not match the secret.
	ErrInvalidCode = errors.New("invalid arming code")
)

var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Check validates code against secret at now. An empty secret disables the
// check. Simulation never needs arming; callers only invoke Check for real
// mode.
func Check(secret, code string, now time.Time) error {
	if secret == "" {
		return nil
	}
	if code == "" {
		return ErrNotArmed
	}
	ok, err := totp.ValidateCustom(code, secret, now, validateOpts)
	if err != nil {
		return errors.Wrap(err, "validate arming code")
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// NewSecret generates a base32 secret for the given account label, suitable
// for ARM_TOTP_SECRET and any authenticator app.
func NewSecret(account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "cryptobot",
		AccountName: account,
	})
	if err != nil {
		return nil, errors.Wrap(err, "generate arming secret")
	}
	return key, nil
}
