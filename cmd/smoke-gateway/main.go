// Command smoke-gateway builds a signed sandbox authorization and, when
// asked, posts it to the gateway. It exercises the signing and codec path
// end to end without the HTTP API in front.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gpcheckout.org/internal/gateway"
)

func main() {
	log.SetFlags(0)
	var (
		merchantID = flag.String("merchant", os.Getenv("GPC_API_MERCHANT_ID"), "merchant id")
		account    = flag.String("account", os.Getenv("GPC_API_ACCOUNT"), "sub-account")
		secret     = flag.String("secret", os.Getenv("GPC_API_SECRET"), "shared secret")
		url        = flag.String("url", os.Getenv("GPC_API_URL"), "gateway endpoint")
		amount     = flag.String("amount", "1001", "amount in minor units")
		currency   = flag.String("currency", "EUR", "ISO currency code")
		pan        = flag.String("pan", "4263971921001307", "sandbox test card")
		doPost     = flag.Bool("post", false, "post the request to the gateway")
	)
	flag.Parse()

	if *merchantID == "" || *secret == "" {
		log.Fatal("missing credentials: provide -merchant and -secret or GPC_API_* env")
	}

	now := time.Now().UTC()
	timestamp := now.Format("20060102150405")
	orderID := fmt.Sprintf("SMOKE-%d", now.UnixMilli())

	signer := gateway.NewSigner(*secret)
	req := gateway.AuthRequest{
		Timestamp:  timestamp,
		MerchantID: *merchantID,
		Account:    *account,
		OrderID:    orderID,
		Amount:     *amount,
		Currency:   *currency,
		PAN:        *pan,
		ExpiryMMYY: "1230",
		CardHolder: "Smoke Test",
		Brand:      gateway.InferBrand(*pan),
		CVN:        "123",
		Hash:       signer.SignAuth(timestamp, *merchantID, orderID, *amount, *currency, *pan),
	}

	body := req.XML()
	fmt.Println(body)

	if !*doPost {
		return
	}
	if *url == "" {
		log.Fatal("missing -url (or GPC_API_URL) for -post")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := gateway.NewClient(*url)
	resp, err := client.Post(ctx, "auth", body)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}
	fmt.Printf("result=%s message=%q authcode=%s pasref=%s\n",
		resp.ResultCode, resp.Message, resp.AuthCode, resp.PasRef)
	if !resp.Approved() {
		os.Exit(1)
	}
}
