package internal

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
)

// SignatureHeader carries the source host's HMAC-SHA1 digest of the request body.
const SignatureHeader = "X-Hub-Signature"

// ErrBadSignature marks authentication failures. Handlers surface it to the
// caller instead of swallowing it like other request errors.
var ErrBadSignature = errors.New("webhook signature rejected")

// ValidateSignature checks the request body against the signature header
// using the repository's shared secret. An empty secret disables validation.
// Must pass before the payload is used for any side effect.
func ValidateSignature(secret string, body []byte, header http.Header) error {
	if secret == "" {
		return nil
	}
	got := header.Get(SignatureHeader)
	if got == "" {
		return fmt.Errorf("%w: missing %s header", ErrBadSignature, SignatureHeader)
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	want := "sha1=" + hex.EncodeToString(mac.Sum(nil))
	if got != want {
		return fmt.Errorf("%w: digest mismatch", ErrBadSignature)
	}
	return nil
}
