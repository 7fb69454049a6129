package mercury

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	// SignatureHeaderName is the header Mercury signs webhook deliveries with.
	SignatureHeaderName = "Mercury-Signature"

	signatureKeyTimestamp = "t"
	signatureKeyV1        = "v1"
	redacted              = "[redacted]"
)

// Secret is the shared webhook secret of a subscription. Mercury hands it out
// base64 encoded; secrets that do not decode are used as raw text.
type Secret string

// IsZero reports whether no secret is configured.
func (s Secret) IsZero() bool {
	return s == ""
}

// Key returns the HMAC key bytes: the base64-decoded secret, or the secret's
// UTF-8 bytes when it is not valid padded standard base64.
func (s Secret) Key() []byte {
	if decoded, err := base64.StdEncoding.DecodeString(string(s)); err == nil {
		return decoded
	}
	return []byte(s)
}

// String keeps secrets out of logs and error messages.
func (s Secret) String() string {
	if s.IsZero() {
		return ""
	}
	return redacted
}

// GoString keeps secrets out of %#v output.
func (s Secret) GoString() string {
	return s.String()
}

// SignatureHeader is the parsed form of "t=<timestamp>,v1=<hex signature>".
type SignatureHeader struct {
	Timestamp    string
	SignatureHex string
}

// ParseSignatureHeader parses a comma-separated key=value list. Each pair is
// split on its first '=' only. A pair without '=' or a missing/empty t or v1
// makes the header malformed. The timestamp is kept opaque.
func ParseSignatureHeader(value string) (SignatureHeader, error) {
	parts := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return SignatureHeader{}, NewError(ErrAuth, ReasonMalformedSignatureHeader, nil)
		}
		parts[kv[0]] = kv[1]
	}

	header := SignatureHeader{
		Timestamp:    parts[signatureKeyTimestamp],
		SignatureHex: parts[signatureKeyV1],
	}
	if header.Timestamp == "" || header.SignatureHex == "" {
		return SignatureHeader{}, NewError(ErrAuth, ReasonMalformedSignatureHeader, nil)
	}
	return header, nil
}

// String formats the header the way Mercury sends it.
func (h SignatureHeader) String() string {
	return signatureKeyTimestamp + "=" + h.Timestamp + "," + signatureKeyV1 + "=" + h.SignatureHex
}

// Sign computes the hex HMAC-SHA256 of "<timestamp>.<body>" keyed by secret.
// The body must be the exact bytes received on the wire.
func Sign(secret Secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret.Key())
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader returns a complete Mercury-Signature header value for body.
func SignHeader(secret Secret, timestamp string, body []byte) string {
	return SignatureHeader{Timestamp: timestamp, SignatureHex: Sign(secret, timestamp, body)}.String()
}

// VerificationStatus is the outcome class of a signature check.
type VerificationStatus int

const (
	// VerificationSkipped means no secret is configured and the check was bypassed.
	VerificationSkipped VerificationStatus = iota
	// VerificationVerified means the signature matched.
	VerificationVerified
	// VerificationRejected means the request must be refused; see Reason.
	VerificationRejected
)

func (s VerificationStatus) String() string {
	switch s {
	case VerificationVerified:
		return "verified"
	case VerificationRejected:
		return "rejected"
	default:
		return "skipped"
	}
}

// Verification is the result of Verify: Verified, Skipped, or Rejected with a reason code.
type Verification struct {
	Status VerificationStatus
	Reason string
}

// OK reports whether the request may proceed.
func (v Verification) OK() bool {
	return v.Status != VerificationRejected
}

// Err returns an ErrAuth error for a rejection, nil otherwise.
func (v Verification) Err() error {
	if v.OK() {
		return nil
	}
	return NewError(ErrAuth, v.Reason, nil)
}

func rejected(reason string) Verification {
	return Verification{Status: VerificationRejected, Reason: reason}
}

// Verify checks the Mercury-Signature header of a request against secret.
//
// With an empty secret verification is skipped: deployments that have not
// configured a secret accept unsigned requests. No timestamp freshness
// window is applied.
func Verify(header http.Header, body []byte, secret Secret) Verification {
	if secret.IsZero() {
		return Verification{Status: VerificationSkipped}
	}

	raw := header.Get(SignatureHeaderName)
	if raw == "" {
		return rejected(ReasonMissingSignatureHeader)
	}

	parsed, err := ParseSignatureHeader(raw)
	if err != nil {
		return rejected(ReasonMalformedSignatureHeader)
	}

	expected := Sign(secret, parsed.Timestamp, body)
	if subtle.ConstantTimeCompare([]byte(parsed.SignatureHex), []byte(expected)) != 1 {
		return rejected(ReasonSignatureMismatch)
	}
	return Verification{Status: VerificationVerified}
}
