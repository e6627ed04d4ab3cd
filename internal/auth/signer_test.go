package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern/relay/internal/model/relay"
)

var testSecret = []byte("s3cr3t")

func TestCanonicalizeIsCompactSortedJSON(t *testing.T) {
	got, err := Canonicalize(relay.RequestPayload{Model: "llama3:8b", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Canonicalize err: %v", err)
	}
	if string(got) != `{"model":"llama3:8b","prompt":"hi"}` {
		t.Fatalf("unexpected canonical form: %s", got)
	}

	withSystem, err := Canonicalize(relay.RequestPayload{Model: "m", Prompt: "<p> & q", SystemPrompt: "s"})
	if err != nil {
		t.Fatalf("Canonicalize err: %v", err)
	}
	if string(withSystem) != `{"model":"m","prompt":"<p> & q","system_prompt":"s"}` {
		t.Fatalf("unexpected canonical form: %s", withSystem)
	}
}

func TestSignMatchesReferenceDigest(t *testing.T) {
	const timestamp int64 = 1760000000
	payload := relay.RequestPayload{Model: "llama3:8b", Prompt: "hi"}

	mac := hmac.New(sha256.New, testSecret)
	mac.Write([]byte(`{"model":"llama3:8b","prompt":"hi"}` + strconv.FormatInt(timestamp, 10)))
	want := hex.EncodeToString(mac.Sum(nil))

	got, err := Sign(payload, testSecret, timestamp)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	ts := strconv.FormatInt(timestamp, 10)
	if !Verify(payload, ts, got, testSecret, time.Unix(timestamp, 0), DefaultWindow) {
		t.Fatal("expected signature to verify at signing time")
	}
	if Verify(payload, ts, got, testSecret, time.Unix(timestamp+301, 0), 300*time.Second) {
		t.Fatal("expected signature to be rejected 301s later")
	}
}

func TestVerifyAcceptsEdgesOfWindow(t *testing.T) {
	const timestamp int64 = 1000
	payload := relay.RequestPayload{Model: "m", Prompt: "p"}
	sig, err := Sign(payload, testSecret, timestamp)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	ts := strconv.FormatInt(timestamp, 10)

	cases := []struct {
		name string
		now  int64
		ok   bool
	}{
		{"same second", 1000, true},
		{"exactly window later", 1300, true},
		{"exactly window earlier", 700, true},
		{"one past window", 1301, false},
		{"from the future", 699, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Verify(payload, ts, sig, testSecret, time.Unix(tc.now, 0), 300*time.Second)
			if got != tc.ok {
				t.Fatalf("expected %v, got %v", tc.ok, got)
			}
		})
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	const timestamp int64 = 5000
	payload := relay.RequestPayload{Model: "llama3:8b", Prompt: "open the vault", SystemPrompt: "warden"}
	sig, err := Sign(payload, testSecret, timestamp)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	now := time.Unix(timestamp, 0)
	ts := strconv.FormatInt(timestamp, 10)

	tampered := []relay.RequestPayload{
		{Model: "llama3:70b", Prompt: payload.Prompt, SystemPrompt: payload.SystemPrompt},
		{Model: payload.Model, Prompt: "open the vaulT", SystemPrompt: payload.SystemPrompt},
		{Model: payload.Model, Prompt: payload.Prompt},
	}
	for i, p := range tampered {
		if Verify(p, ts, sig, testSecret, now, DefaultWindow) {
			t.Fatalf("case %d: expected tampered payload to fail", i)
		}
	}

	if Verify(payload, "5001", sig, testSecret, now, DefaultWindow) {
		t.Fatal("expected altered timestamp to fail")
	}
	if Verify(payload, ts, sig, []byte("other"), now, DefaultWindow) {
		t.Fatal("expected wrong secret to fail")
	}

	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	if Verify(payload, ts, string(flipped), testSecret, now, DefaultWindow) {
		t.Fatal("expected altered signature to fail")
	}
}

func TestCheckReportsReason(t *testing.T) {
	payload := relay.RequestPayload{Model: "m", Prompt: "p"}
	now := time.Unix(2000, 0)
	sig, _ := Sign(payload, testSecret, 2000)

	if err := Check(payload, "not-a-number", sig, testSecret, now, DefaultWindow); !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
	if err := Check(payload, "", sig, testSecret, now, DefaultWindow); !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp for empty timestamp, got %v", err)
	}
	if err := Check(payload, "1", sig, testSecret, now, DefaultWindow); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if err := Check(payload, "2000", "zz-not-hex", testSecret, now, DefaultWindow); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if err := Check(payload, "-9223372036854775808", sig, testSecret, now, DefaultWindow); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired for extreme timestamp, got %v", err)
	}
	if err := Check(payload, "2000", sig, nil, now, DefaultWindow); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestVerifyRequiresLowercaseHex(t *testing.T) {
	payload := relay.RequestPayload{Model: "llama3:8b", Prompt: "hi"}
	now := time.Unix(1_760_000_000, 0)
	sig, err := Sign(payload, testSecret, now.Unix())
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	if sig != strings.ToLower(sig) {
		t.Fatalf("expected lowercase signature, got %s", sig)
	}

	upper := strings.ToUpper(sig)
	if upper == sig {
		t.Fatalf("signature %s has no hex letters to vary", sig)
	}
	if err := Check(payload, "1760000000", upper, testSecret, now, DefaultWindow); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected uppercase signature to be rejected, got %v", err)
	}
	if !Verify(payload, "1760000000", sig, testSecret, now, DefaultWindow) {
		t.Fatal("expected lowercase signature to verify")
	}
}

func TestSignerAndVerifierRoundTrip(t *testing.T) {
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	signer := NewSigner(testSecret, WithClock(clock))
	verifier := NewVerifier(testSecret, 0, WithClock(clock))

	if verifier.Window() != DefaultWindow {
		t.Fatalf("expected default window, got %s", verifier.Window())
	}

	signed, err := signer.Sign(relay.RequestPayload{Model: "m", Prompt: "p", SystemPrompt: "s"})
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	if signed.Timestamp != 1_700_000_000 {
		t.Fatalf("unexpected timestamp %d", signed.Timestamp)
	}
	if err := verifier.Check(signed.Payload, strconv.FormatInt(signed.Timestamp, 10), signed.Signature); err != nil {
		t.Fatalf("expected signed request to verify, got %v", err)
	}
}

func TestSignRejectsEmptySecret(t *testing.T) {
	if _, err := Sign(relay.RequestPayload{}, nil, 1); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}
