// Package notify delivers one-time passcodes to humans over an out-of-band
// channel. The core treats delivery failure as recoverable: the OTP service
// falls back to an operator-visible record rather than aborting phase 1.
package notify

import (
	"context"
	"strings"
)

// Message is one passcode delivery.
type Message struct {
	// Target is the unmasked delivery address (email or phone).
	Target string
	// Code is the cleartext passcode. It exists only in flight; stores keep a hash.
	Code string
	// Summary is a human-readable line describing the pending operation.
	Summary string
	// RequestedBy is the identity that triggered the challenge, for the message body.
	RequestedBy string
}

// Dispatcher sends a passcode out-of-band. A non-nil error means delivery
// did not happen; callers decide the fallback.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// MaskTarget hides most of a delivery address for echoing back to API callers.
// Emails keep the first rune of the local part and the domain; phone numbers
// keep the last four digits.
func MaskTarget(target string) string {
	if target == "" {
		return ""
	}
	if at := strings.IndexByte(target, '@'); at > 0 {
		local := target[:at]
		masked := local[:1] + strings.Repeat("*", max(len(local)-1, 2))
		return masked + target[at:]
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, target)
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
