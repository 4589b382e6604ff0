package gateway

import (
	"fmt"
	"regexp"
)

// The request bodies below mirror the gateway's fixed schema element for
// element. They are rendered from templates rather than encoding/xml
// because the gateway is sensitive to element order and attribute layout,
// and the legacy integration's exact shapes are the compatibility contract.
// Amounts are already minor-unit strings, expiry is MMYY with no separator.

// AuthRequest is a direct card payment (request type "auth").
type AuthRequest struct {
	Timestamp  string
	MerchantID string
	Account    string
	OrderID    string
	Amount     string
	Currency   string
	PAN        string
	ExpiryMMYY string
	CardHolder string
	Brand      string
	CVN        string
	Hash       string
}

func (r AuthRequest) XML() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<request type="auth" timestamp="%s">
  <merchantid>%s</merchantid>
  <account>%s</account>
  <orderid>%s</orderid>
  <amount currency="%s">%s</amount>
  <card>
    <number>%s</number>
    <expdate>%s</expdate>
    <chname>%s</chname>
    <type>%s</type>
    <cvn>
      <number>%s</number>
      <presind>1</presind>
    </cvn>
  </card>
  <autosettle flag="1"/>
  <sha1hash>%s</sha1hash>
</request>`,
		r.Timestamp, r.MerchantID, r.Account, r.OrderID, r.Currency, r.Amount,
		r.PAN, r.ExpiryMMYY, r.CardHolder, r.Brand, r.CVN, r.Hash)
}

// RebateRequest refunds a previously settled payment (request type
// "rebate"). OrderID, PasRef and AuthCode identify the original auth.
type RebateRequest struct {
	Timestamp  string
	MerchantID string
	Account    string
	OrderID    string
	Amount     string
	Currency   string
	PasRef     string
	AuthCode   string
	Hash       string
}

func (r RebateRequest) XML() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<request type="rebate" timestamp="%s">
  <merchantid>%s</merchantid>
  <account>%s</account>
  <orderid>%s</orderid>
  <pasref>%s</pasref>
  <authcode>%s</authcode>
  <amount currency="%s">%s</amount>
  <autosettle flag="1"/>
  <sha1hash>%s</sha1hash>
</request>`,
		r.Timestamp, r.MerchantID, r.Account, r.OrderID, r.PasRef, r.AuthCode,
		r.Currency, r.Amount, r.Hash)
}

// PayerNewRequest registers a customer in the gateway vault (request type
// "payer-new").
type PayerNewRequest struct {
	Timestamp  string
	MerchantID string
	Account    string
	OrderID    string
	PayerRef   string
	FirstName  string
	Surname    string
	Email      string
	Hash       string
}

func (r PayerNewRequest) XML() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<request type="payer-new" timestamp="%s">
  <merchantid>%s</merchantid>
  <account>%s</account>
  <orderid>%s</orderid>
  <payer type="Retail" ref="%s">
    <firstname>%s</firstname>
    <surname>%s</surname>
    <email>%s</email>
  </payer>
  <sha1hash>%s</sha1hash>
</request>`,
		r.Timestamp, r.MerchantID, r.Account, r.OrderID, r.PayerRef,
		r.FirstName, r.Surname, r.Email, r.Hash)
}

// CardNewRequest stores a card under an existing payer reference (request
// type "card-new").
type CardNewRequest struct {
	Timestamp  string
	MerchantID string
	Account    string
	OrderID    string
	CardRef    string
	PayerRef   string
	PAN        string
	ExpiryMMYY string
	CardHolder string
	Brand      string
	Hash       string
}

func (r CardNewRequest) XML() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<request type="card-new" timestamp="%s">
  <merchantid>%s</merchantid>
  <account>%s</account>
  <orderid>%s</orderid>
  <card>
    <ref>%s</ref>
    <payerref>%s</payerref>
    <number>%s</number>
    <expdate>%s</expdate>
    <chname>%s</chname>
    <type>%s</type>
  </card>
  <sha1hash>%s</sha1hash>
</request>`,
		r.Timestamp, r.MerchantID, r.Account, r.OrderID, r.CardRef, r.PayerRef,
		r.PAN, r.ExpiryMMYY, r.CardHolder, r.Brand, r.Hash)
}

// ReceiptInRequest charges a tokenized payer/card pair (request type
// "receipt-in"). When CVN is set the shopper re-entered the security code
// and a paymentdata block is included; without it the charge is purely
// reference-based.
type ReceiptInRequest struct {
	Timestamp  string
	MerchantID string
	Account    string
	OrderID    string
	Amount     string
	Currency   string
	PayerRef   string
	CardRef    string
	CVN        string
	Hash       string
}

func (r ReceiptInRequest) XML() string {
	paymentData := ""
	if r.CVN != "" {
		paymentData = fmt.Sprintf(`
  <paymentdata>
    <cvn>
      <number>%s</number>
    </cvn>
  </paymentdata>`, r.CVN)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<request type="receipt-in" timestamp="%s">
  <merchantid>%s</merchantid>
  <account>%s</account>
  <orderid>%s</orderid>
  <amount currency="%s">%s</amount>
  <payerref>%s</payerref>
  <paymentmethod>%s</paymentmethod>%s
  <autosettle flag="1"/>
  <sha1hash>%s</sha1hash>
</request>`,
		r.Timestamp, r.MerchantID, r.Account, r.OrderID, r.Currency, r.Amount,
		r.PayerRef, r.CardRef, paymentData, r.Hash)
}

// Response is the scraped view of a gateway XML reply. Fields the reply
// does not contain stay empty; the caller treats any result other than
// "00" as a decline, so a mangled reply degrades to a failure rather than
// an error.
type Response struct {
	ResultCode string
	Message    string
	OrderID    string
	AuthCode   string
	PasRef     string
	Timestamp  string
	Raw        string
}

// Approved reports whether the gateway accepted the operation.
func (r Response) Approved() bool { return r.ResultCode == "00" }

var (
	reResult    = regexp.MustCompile(`<result>(\d+)</result>`)
	reMessage   = regexp.MustCompile(`<message>(.*?)</message>`)
	reOrderID   = regexp.MustCompile(`<orderid>(.*?)</orderid>`)
	reAuthCode  = regexp.MustCompile(`<authcode>(.*?)</authcode>`)
	rePasRef    = regexp.MustCompile(`<pasref>(.*?)</pasref>`)
	reTimestamp = regexp.MustCompile(`timestamp="(\d+)"`)
)

// ParseResponse scrapes the reply with pattern matches instead of a full
// XML parse, exactly like the integration it replaces. A <message> body
// containing markup can defeat the match; the legacy system accepts that
// risk for sandbox traffic and so does this one.
func ParseResponse(raw string) Response {
	resp := Response{Raw: raw}
	if m := reResult.FindStringSubmatch(raw); m != nil {
		resp.ResultCode = m[1]
	}
	if m := reMessage.FindStringSubmatch(raw); m != nil {
		resp.Message = m[1]
	}
	if m := reOrderID.FindStringSubmatch(raw); m != nil {
		resp.OrderID = m[1]
	}
	if m := reAuthCode.FindStringSubmatch(raw); m != nil {
		resp.AuthCode = m[1]
	}
	if m := rePasRef.FindStringSubmatch(raw); m != nil {
		resp.PasRef = m[1]
	}
	if m := reTimestamp.FindStringSubmatch(raw); m != nil {
		resp.Timestamp = m[1]
	}
	return resp
}
