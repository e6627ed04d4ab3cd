package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/zhouzirui/z-tavern/relay/internal/model/relay"
)

// DefaultWindow is the freshness window applied when none is configured.
const DefaultWindow = 300 * time.Second

var (
	ErrEmptySecret        = errors.New("shared secret is empty")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrExpired            = errors.New("timestamp outside freshness window")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// Sign computes the hex HMAC-SHA256 signature of payload at timestamp.
func Sign(payload relay.RequestPayload, secret []byte, timestamp int64) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	digest, err := digest(payload, secret, strconv.FormatInt(timestamp, 10))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest), nil
}

// Verify reports whether signature authenticates payload at timestamp. It is
// the boolean form of Check.
func Verify(payload relay.RequestPayload, timestamp, signature string, secret []byte, now time.Time, window time.Duration) bool {
	return Check(payload, timestamp, signature, secret, now, window) == nil
}

// Check validates a signed payload and says why it was rejected. The error
// never contains the expected signature, so it is safe to log.
func Check(payload relay.RequestPayload, timestamp, signature string, secret []byte, now time.Time, window time.Duration) error {
	if len(secret) == 0 {
		return ErrEmptySecret
	}

	issued, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrMalformedTimestamp
	}

	// Compare against the window bounds rather than subtracting, so absurd
	// timestamps cannot overflow.
	current := now.Unix()
	seconds := int64(window / time.Second)
	if issued < current-seconds || issued > current+seconds {
		return ErrExpired
	}

	expected, err := digest(payload, secret, timestamp)
	if err != nil {
		return err
	}
	// Signatures are lowercase hex; compare the text form so other casings fail.
	if !hmac.Equal([]byte(hex.EncodeToString(expected)), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func digest(payload relay.RequestPayload, secret []byte, timestamp string) ([]byte, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	mac.Write([]byte(timestamp))
	return mac.Sum(nil), nil
}

// Option configures a Signer or Verifier.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Signer stamps outgoing payloads with the current time and a signature.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner binds a signer to secret.
func NewSigner(secret []byte, opts ...Option) *Signer {
	o := buildOptions(opts)
	return &Signer{secret: secret, now: o.now}
}

// Sign returns payload together with its timestamp and signature.
func (s *Signer) Sign(payload relay.RequestPayload) (relay.SignedRequest, error) {
	timestamp := s.now().Unix()
	signature, err := Sign(payload, s.secret, timestamp)
	if err != nil {
		return relay.SignedRequest{}, err
	}
	return relay.SignedRequest{
		Payload:   payload,
		Timestamp: timestamp,
		Signature: signature,
	}, nil
}

// Verifier checks incoming requests against a secret and freshness window.
type Verifier struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

// NewVerifier returns a Verifier. A non-positive window falls back to
// DefaultWindow.
func NewVerifier(secret []byte, window time.Duration, opts ...Option) *Verifier {
	if window <= 0 {
		window = DefaultWindow
	}
	o := buildOptions(opts)
	return &Verifier{secret: secret, window: window, now: o.now}
}

// Check validates the raw header values for payload.
func (v *Verifier) Check(payload relay.RequestPayload, timestamp, signature string) error {
	return Check(payload, timestamp, signature, v.secret, v.now(), v.window)
}

// Window reports the configured freshness window.
func (v *Verifier) Window() time.Duration {
	return v.window
}
