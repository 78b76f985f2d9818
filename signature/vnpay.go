package signature

import (
	"net/url"
	"strings"
)

// VNPay signs every parameter except the hash fields themselves: sorted
// alphabetically, values percent-encoded exactly as the final query
// string encodes them, joined key=value with &, then HMAC-SHA512 hex.
// The sign data has to match the URL encoding byte for byte or the
// sandbox rejects the hash.

const (
	vnpaySecureHashField     = "vnp_SecureHash"
	vnpaySecureHashTypeField = "vnp_SecureHashType"
)

type VnpaySigner struct {
	hashSecret string
}

func NewVnpaySigner(hashSecret string) *VnpaySigner {
	return &VnpaySigner{hashSecret: hashSecret}
}

func (s *VnpaySigner) Sign(params map[string]string) string {
	return hmacSHA512Hex(s.hashSecret, CanonicalQuery(params))
}

func (s *VnpaySigner) Verify(params map[string]string) bool {
	received := params[vnpaySecureHashField]
	if received == "" {
		return false
	}
	return strings.EqualFold(s.Sign(params), received)
}

// CanonicalQuery builds the sorted, percent-encoded query string VNPay
// hashes. The hash fields are always excluded. The same string, with
// the hash appended, becomes the redirect URL for payment creation.
func CanonicalQuery(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if k == vnpaySecureHashField || k == vnpaySecureHashTypeField {
			continue
		}
		values.Set(k, v)
	}
	return values.Encode()
}
