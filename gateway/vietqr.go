package gateway

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"payment-gateway-svc/config"
)

// Vietqr builds manual-transfer QR codes. It has no inbound path of its
// own: settlement for these transfers arrives through the SePay webhook
// carrying the same HM reference token.
type Vietqr struct {
	bank   config.BankConfig
	momoQR config.MomoQRConfig
}

func NewVietqr(bank config.BankConfig, momoQR config.MomoQRConfig) *Vietqr {
	return &Vietqr{bank: bank, momoQR: momoQR}
}

type BankInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VietQR member banks offered in the checkout UI.
var bankList = []BankInfo{
	{ID: "VCB", Name: "Vietcombank"},
	{ID: "TCB", Name: "Techcombank"},
	{ID: "MB", Name: "MB Bank"},
	{ID: "ACB", Name: "ACB"},
	{ID: "VPB", Name: "VPBank"},
	{ID: "TPB", Name: "TPBank"},
	{ID: "BIDV", Name: "BIDV"},
	{ID: "VIB", Name: "VIB"},
	{ID: "SHB", Name: "SHB"},
	{ID: "MSB", Name: "MSB"},
	{ID: "STB", Name: "Sacombank"},
	{ID: "OCB", Name: "OCB"},
	{ID: "HDB", Name: "HDBank"},
	{ID: "NAB", Name: "Nam A Bank"},
	{ID: "EIB", Name: "Eximbank"},
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// TransferContent renders the memo token SePay later parses back out.
// Must stay the exact inverse of ParseOrderRef.
func TransferContent(orderID string) string {
	return "HM" + nonAlnum.ReplaceAllString(strings.ToUpper(orderID), "")
}

// QRURL returns the VietQR image URL for a transfer of amount VND with
// the order's reference token in the memo.
func (v *Vietqr) QRURL(orderID string, amount int64) string {
	return fmt.Sprintf(
		"https://img.vietqr.io/image/%s-%s-%s.jpg?amount=%d&addInfo=%s&accountName=%s",
		v.bank.BankID, v.bank.AccountNo, v.bank.Template,
		amount,
		url.QueryEscape(TransferContent(orderID)),
		url.QueryEscape(v.bank.AccountName),
	)
}

// MomoDeeplink returns the person-to-person wallet transfer deeplink
// for the manual MoMo QR flow.
func (v *Vietqr) MomoDeeplink(orderID string, amount int64) string {
	return fmt.Sprintf(
		"momo://app?action=transfer&phone=%s&amount=%d&comment=%s",
		v.momoQR.Phone, amount, url.QueryEscape(TransferContent(orderID)),
	)
}

func (v *Vietqr) Banks() []BankInfo {
	return bankList
}

func (v *Vietqr) Bank() config.BankConfig {
	return v.bank
}

func (v *Vietqr) MomoQR() config.MomoQRConfig {
	return v.momoQR
}
