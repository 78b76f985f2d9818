package signature

import (
	"sort"
	"strings"
)

// MoMo signs a fixed field list per message type, sorted alphabetically,
// joined as key=value with &, values verbatim (no encoding), then
// HMAC-SHA256 hex. A field missing from the params map still appears in
// the raw string with an empty value.
//
// Field lists per the MoMo v2 API: payment-create, IPN, and query
// messages each sign a different set.
var (
	MomoCreateFields = []string{
		"accessKey", "amount", "extraData", "ipnUrl", "orderId",
		"orderInfo", "partnerCode", "redirectUrl", "requestId", "requestType",
	}
	MomoIPNFields = []string{
		"accessKey", "amount", "extraData", "message", "orderId",
		"orderInfo", "orderType", "partnerCode", "payType", "requestId",
		"responseTime", "resultCode", "transId",
	}
	MomoQueryFields = []string{
		"accessKey", "orderId", "partnerCode", "requestId",
	}
)

const momoSignatureField = "signature"

type MomoSigner struct {
	secretKey string
	fields    []string
}

func NewMomoSigner(secretKey string, fields []string) *MomoSigner {
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)
	return &MomoSigner{secretKey: secretKey, fields: sorted}
}

func (s *MomoSigner) Sign(params map[string]string) string {
	var b strings.Builder
	for i, field := range s.fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(field)
		b.WriteByte('=')
		b.WriteString(params[field])
	}
	return hmacSHA256Hex(s.secretKey, b.String())
}

func (s *MomoSigner) Verify(params map[string]string) bool {
	received := params[momoSignatureField]
	if received == "" {
		return false
	}
	return strings.EqualFold(s.Sign(params), received)
}
