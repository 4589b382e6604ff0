// Package gatewaytest provides an in-process stand-in for the payment
// gateway's XML endpoint. It verifies the sha1hash on every inbound
// request the way the real gateway would and replies with scripted result
// codes, so orchestrator tests exercise the full sign-encode-post-decode
// path without network access.
package gatewaytest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"time"

	"gpcheckout.org/internal/gateway"
)

// Reply scripts the response for one request type.
type Reply struct {
	ResultCode string
	Message    string
	AuthCode   string
	PasRef     string
}

// Server is the fake gateway. Zero-value replies approve everything.
type Server struct {
	*httptest.Server

	merchantID string
	signer     gateway.Signer

	mu       sync.Mutex
	replies  map[string]Reply
	requests []string
}

var (
	reType      = regexp.MustCompile(`<request type="([a-z-]+)" timestamp="(\d+)">`)
	reOrderID   = regexp.MustCompile(`<orderid>(.*?)</orderid>`)
	reAmount    = regexp.MustCompile(`<amount currency="([A-Z]+)">(\d+)</amount>`)
	rePAN       = regexp.MustCompile(`<number>(\d+)</number>`)
	reChName    = regexp.MustCompile(`<chname>(.*?)</chname>`)
	rePayerAttr = regexp.MustCompile(`<payer type="Retail" ref="(.*?)">`)
	rePayerRef  = regexp.MustCompile(`<payerref>(.*?)</payerref>`)
	reHash      = regexp.MustCompile(`<sha1hash>([0-9a-f]{40})</sha1hash>`)
)

// New starts the fake gateway for the given API credentials.
func New(merchantID, secret string) *Server {
	s := &Server{
		merchantID: merchantID,
		signer:     gateway.NewSigner(secret),
		replies:    make(map[string]Reply),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Script sets the reply for one request type ("auth", "rebate", ...).
func (s *Server) Script(requestType string, r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[requestType] = r
}

// Requests returns the raw XML bodies received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns how many requests the fake gateway has seen.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	body := string(data)

	s.mu.Lock()
	s.requests = append(s.requests, body)
	s.mu.Unlock()

	typeMatch := reType.FindStringSubmatch(body)
	if typeMatch == nil {
		s.respond(w, "508", "Malformed request", "", "", "")
		return
	}
	requestType, timestamp := typeMatch[1], typeMatch[2]
	orderID := submatch(reOrderID, body)

	if !s.verifyHash(requestType, timestamp, orderID, body) {
		s.respond(w, "505", "Invalid hash", orderID, "", "")
		return
	}

	s.mu.Lock()
	reply, scripted := s.replies[requestType]
	s.mu.Unlock()
	if !scripted {
		reply = Reply{
			ResultCode: "00",
			Message:    "AUTH CODE 12345",
			AuthCode:   "12345",
			PasRef:     "pas-" + orderID,
		}
	}
	s.respond(w, reply.ResultCode, reply.Message, orderID, reply.AuthCode, reply.PasRef)
}

// verifyHash recomputes the signature the way the real gateway does for
// each request type.
func (s *Server) verifyHash(requestType, timestamp, orderID, body string) bool {
	provided := submatch(reHash, body)
	if provided == "" {
		return false
	}

	var expected string
	switch requestType {
	case "auth":
		currency, amount := amountParts(body)
		expected = s.signer.SignAuth(timestamp, s.merchantID, orderID, amount, currency, submatch(rePAN, body))
	case "rebate":
		expected = s.signer.SignRebate(timestamp, s.merchantID, orderID)
	case "payer-new":
		expected = s.signer.SignPayerNew(timestamp, s.merchantID, orderID, submatch(rePayerAttr, body))
	case "card-new":
		expected = s.signer.SignCardNew(timestamp, s.merchantID, orderID,
			submatch(rePayerRef, body), submatch(reChName, body), submatch(rePAN, body))
	case "receipt-in":
		currency, amount := amountParts(body)
		expected = s.signer.SignReceiptIn(timestamp, s.merchantID, orderID, amount, currency)
	default:
		return false
	}
	return expected == provided
}

func (s *Server) respond(w http.ResponseWriter, result, message, orderID, authCode, pasRef string) {
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<response timestamp="%s">
  <result>%s</result>
  <message>%s</message>
  <orderid>%s</orderid>
  <authcode>%s</authcode>
  <pasref>%s</pasref>
</response>`,
		time.Now().Format("20060102150405"), result, message, orderID, authCode, pasRef)
}

func submatch(re *regexp.Regexp, body string) string {
	if m := re.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

func amountParts(body string) (currency, amount string) {
	if m := reAmount.FindStringSubmatch(body); m != nil {
		return m[1], m[2]
	}
	return "", ""
}
