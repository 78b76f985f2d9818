// Package signature implements the canonicalize-and-HMAC schemes the
// payment gateways use to authenticate their callbacks. Each gateway
// gets its own Signer; the reconciliation engine never branches on
// provider signing rules itself.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
)

// Signer produces and checks a gateway's keyed hash over a parameter
// set. Verify must strip the gateway's signature field before
// recomputing, compare case-insensitively (gateways return hex in mixed
// case), and fail closed when the signature field is absent.
type Signer interface {
	Sign(params map[string]string) string
	Verify(params map[string]string) bool
}

func hmacHex(newHash func() hash.Hash, secret, data string) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacSHA256Hex(secret, data string) string {
	return hmacHex(sha256.New, secret, data)
}

func hmacSHA512Hex(secret, data string) string {
	return hmacHex(sha512.New, secret, data)
}
