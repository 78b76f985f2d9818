package config

import "os"

// MomoConfig holds the wallet gateway credentials and endpoints. It is
// built once at startup and injected into the adapter; nothing in this
// service reads gateway env vars after boot.
type MomoConfig struct {
	PartnerCode   string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	QueryEndpoint string
	RedirectURL   string
	IPNURL        string
}

// VnpayConfig holds the card gateway credentials and endpoints.
type VnpayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	QueryURL   string
	ReturnURL  string
}

// SepayConfig holds the bank-transfer webhook shared secret. SePay has
// no signature scheme; the APIKey header is the whole authentication.
type SepayConfig struct {
	APIKey string
}

// BankConfig describes the receiving account rendered into VietQR codes.
type BankConfig struct {
	BankID      string
	BankName    string
	AccountNo   string
	AccountName string
	Template    string
}

// MomoQRConfig is the manual MoMo transfer target (person-to-person QR).
type MomoQRConfig struct {
	Phone string
	Name  string
}

type Config struct {
	Momo        MomoConfig
	Vnpay       VnpayConfig
	Sepay       SepayConfig
	Bank        BankConfig
	MomoQR      MomoQRConfig
	FrontendURL string
}

func Load() Config {
	return Config{
		Momo: MomoConfig{
			PartnerCode:   getEnv("MOMO_PARTNER_CODE", "MOMOBKUN20180529"),
			AccessKey:     getEnv("MOMO_ACCESS_KEY", "klm05TvNBzhg7h7j"),
			SecretKey:     getEnv("MOMO_SECRET_KEY", "at67qH6mk8w5Y1nAyMoYKMWACiEi2bsa"),
			Endpoint:      getEnv("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/create"),
			QueryEndpoint: getEnv("MOMO_QUERY_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/query"),
			RedirectURL:   getEnv("MOMO_REDIRECT_URL", "http://localhost:5173/payment/momo/simulator"),
			IPNURL:        getEnv("MOMO_IPN_URL", "http://localhost:8084/api/payment/momo/ipn"),
		},
		Vnpay: VnpayConfig{
			TmnCode:    getEnv("VNPAY_TMN_CODE", "GGPAFZ7E"),
			HashSecret: getEnv("VNPAY_HASH_SECRET", "44WBV76VZDN6GJEC7CDSEJE6RJ17BJRC"),
			PayURL:     getEnv("VNPAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			QueryURL:   getEnv("VNPAY_QUERY_URL", "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"),
			ReturnURL:  getEnv("VNPAY_RETURN_URL", "http://localhost:5173/payment/vnpay/return"),
		},
		Sepay: SepayConfig{
			APIKey: getEnv("SEPAY_API_KEY", ""),
		},
		Bank: BankConfig{
			BankID:      getEnv("BANK_ID", "MB"),
			BankName:    getEnv("BANK_NAME", "MB Bank"),
			AccountNo:   getEnv("BANK_ACCOUNT_NO", "0375225749"),
			AccountName: getEnv("BANK_ACCOUNT_NAME", "LE DUONG BAO"),
			Template:    getEnv("BANK_QR_TEMPLATE", "compact2"),
		},
		MomoQR: MomoQRConfig{
			Phone: getEnv("MOMO_QR_PHONE", "0934142076"),
			Name:  getEnv("MOMO_QR_NAME", "LE DUONG BAO"),
		},
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
