package recon

import "payment-gateway-svc/models"

// Gateways disagree on units: MoMo and SePay report VND directly, VNPay
// reports VND multiplied by 100. Orders store VND.
func unitFactor(provider string) int64 {
	if provider == models.ProviderVnpay {
		return 100
	}
	return 1
}

// AmountStatus compares a provider-reported raw amount against the
// order's expected total under that provider's unit convention. The
// normalized VND amount is returned for the ledger. Under-payment never
// completes an order; over-payment is accepted but surfaced.
func AmountStatus(provider string, expected, receivedRaw int64) (models.AmountStatus, int64) {
	factor := unitFactor(provider)
	normalized := receivedRaw / factor
	switch {
	case receivedRaw == expected*factor:
		return models.AmountExact, normalized
	case receivedRaw < expected*factor:
		return models.AmountInsufficient, normalized
	default:
		return models.AmountExcess, normalized
	}
}
