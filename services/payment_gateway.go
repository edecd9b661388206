// moltcourt-arena/services/payment_gateway.go
package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"
)

// PaymentGateway verifies and settles an off-band payment assertion against a
// price and resource identifier. The engines only ever consume the settled
// flag and proof; the underlying signature/settlement scheme is the
// facilitator's business.
type PaymentGateway interface {
	RequirePayment(amountUsdc float64, resource, description string) PaymentRequirement
	SettlePayment(assertion string, amountUsdc float64, resource string) (*SettleResult, error)
}

// PaymentRequirement is the descriptor returned with a 402 so an off-band
// payer knows what to sign.
type PaymentRequirement struct {
	X402Version    int    `json:"x402Version"`
	Scheme         string `json:"scheme"`
	Network        string `json:"network"`
	PayTo          string `json:"payTo"`
	Price          string `json:"price"`
	Asset          string `json:"asset"`
	FacilitatorURL string `json:"facilitatorUrl"`
	Resource       string `json:"resource"`
	Description    string `json:"description"`
}

// SettleResult is the gateway's outcome for one assertion.
type SettleResult struct {
	Settled     bool   `json:"settled"`
	TxHash      string `json:"tx_hash,omitempty"`
	ErrorReason string `json:"error_reason,omitempty"`
}

// X402Gateway talks to an x402 payment facilitator over HTTP.
type X402Gateway struct {
	FacilitatorURL string
	Network        string
	Asset          string
	PayTo          string
	Client         *http.Client
}

func NewX402Gateway(facilitatorURL, network, asset, payTo string) *X402Gateway {
	return &X402Gateway{
		FacilitatorURL: strings.TrimRight(facilitatorURL, "/"),
		Network:        network,
		Asset:          asset,
		PayTo:          payTo,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *X402Gateway) RequirePayment(amountUsdc float64, resource, description string) PaymentRequirement {
	return PaymentRequirement{
		X402Version:    2,
		Scheme:         "exact",
		Network:        g.Network,
		PayTo:          g.PayTo,
		Price:          fmt.Sprintf("$%.2f", amountUsdc),
		Asset:          g.Asset,
		FacilitatorURL: g.FacilitatorURL,
		Resource:       resource,
		Description:    description,
	}
}

// SettlePayment verifies the assertion with the facilitator and, if valid,
// settles it. A non-settled result with no transport error means the payer's
// assertion was rejected, not that the gateway is down.
func (g *X402Gateway) SettlePayment(assertion string, amountUsdc float64, resource string) (*SettleResult, error) {
	payload, err := decodeAssertion(assertion)
	if err != nil {
		return &SettleResult{Settled: false, ErrorReason: "malformed payment assertion"}, nil
	}

	verified, err := g.call("/verify", payload, amountUsdc, resource)
	if err != nil {
		return nil, err
	}
	if ok, _ := verified["isValid"].(bool); !ok {
		return &SettleResult{Settled: false, ErrorReason: "payment verification failed"}, nil
	}

	settled, err := g.call("/settle", payload, amountUsdc, resource)
	if err != nil {
		return nil, err
	}
	if ok, _ := settled["success"].(bool); ok {
		tx, _ := settled["transaction"].(string)
		return &SettleResult{Settled: true, TxHash: tx}, nil
	}
	reason, _ := settled["errorReason"].(string)
	if reason == "" {
		reason = "settlement failed"
	}
	return &SettleResult{Settled: false, ErrorReason: reason}, nil
}

func decodeAssertion(assertion string) (map[string]interface{}, error) {
	raw, err := base64.StdEncoding.DecodeString(assertion)
	if err != nil {
		return nil, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (g *X402Gateway) call(path string, payload map[string]interface{}, amountUsdc float64, resource string) (map[string]interface{}, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"x402Version": 2,
		"payload":     payload,
		"resource": map[string]interface{}{
			"url":         resource,
			"description": "MoltCourt payment",
			"mimeType":    "application/json",
		},
		"accepted": map[string]interface{}{
			"scheme":            "exact",
			"network":           g.Network,
			"amount":            usdcToSmallestUnit(amountUsdc),
			"asset":             g.Asset,
			"payTo":             g.PayTo,
			"maxTimeoutSeconds": 300,
			"extra":             map[string]string{"name": "USDC", "version": "2"},
		},
	})

	req, err := http.NewRequest("POST", g.FacilitatorURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("x402 facilitator %s returned %d: %s", path, resp.StatusCode, string(raw))
		return nil, fmt.Errorf("facilitator %s failed: %d", path, resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// usdcToSmallestUnit converts a USDC decimal amount to its 6-decimal unit.
func usdcToSmallestUnit(amount float64) string {
	return fmt.Sprintf("%d", int64(math.Floor(amount*1_000_000)))
}
