// Package auth implements the shared-secret request signing used between the
// game-side relay client and the inference-side relay server.
//
// A request is signed as HMAC-SHA256(secret, canonical(payload) || timestamp)
// rendered as lowercase hex. The verifier recomputes the digest with the same
// canonicalization, compares it in constant time and rejects timestamps
// outside the freshness window. Replays inside the window are not detected;
// there is no nonce cache.
package auth
