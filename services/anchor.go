// moltcourt-arena/services/anchor.go
package services

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"
)

// Anchor event types
const (
	AnchorFightVerdict     = "FIGHT_VERDICT"
	AnchorTrialVerdict     = "TRIAL_VERDICT"
	AnchorTournamentResult = "TOURNAMENT_RESULT"
)

// Anchor posts adjudication records to an external transparency channel.
// Strictly best-effort: an empty reference must never block or roll back the
// operation that emitted the record.
type Anchor interface {
	Post(eventType string, payload map[string]interface{}) string
}

// NoopAnchor discards every record. Used when no chain keys are configured.
type NoopAnchor struct{}

func (NoopAnchor) Post(string, map[string]interface{}) string { return "" }

// ChainAnchor anchors records on an EVM chain as a self-transfer whose
// calldata is the hex-encoded record JSON.
type ChainAnchor struct {
	RPCURL        string
	ChainID       int
	WalletAddress string
	Client        *http.Client
}

func NewChainAnchor(rpcURL string, chainID int, walletAddress string) *ChainAnchor {
	return &ChainAnchor{
		RPCURL:        rpcURL,
		ChainID:       chainID,
		WalletAddress: walletAddress,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type anchorRecord struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

func (a *ChainAnchor) Post(eventType string, payload map[string]interface{}) string {
	payload["hash"] = RecordHash(payload)
	record := anchorRecord{
		Type:      eventType,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		log.Printf("[Anchor] marshal failed: %v", err)
		return ""
	}
	calldata := "0x" + hex.EncodeToString(recordJSON)

	nonce, err := a.rpcCall("eth_getTransactionCount", []interface{}{a.WalletAddress, "latest"})
	if err != nil {
		log.Printf("[Anchor] nonce fetch failed: %v", err)
		return ""
	}
	gasPrice, err := a.rpcCall("eth_gasPrice", []interface{}{})
	if err != nil {
		log.Printf("[Anchor] gas price fetch failed: %v", err)
		return ""
	}

	gas := len(calldata) * 8
	if gas < 21000 {
		gas = 21000
	}
	if gas > 500000 {
		gas = 500000
	}

	tx := map[string]interface{}{
		"from":     a.WalletAddress,
		"to":       a.WalletAddress,
		"value":    "0x0",
		"data":     calldata,
		"nonce":    nonce,
		"gasPrice": gasPrice,
		"gas":      fmt.Sprintf("0x%x", gas),
		"chainId":  fmt.Sprintf("0x%x", a.ChainID),
	}

	txHash, err := a.rpcCall("eth_sendTransaction", []interface{}{tx})
	if err != nil {
		log.Printf("[Anchor] send failed: %v", err)
		return ""
	}

	hash, _ := txHash.(string)
	if hash != "" {
		log.Printf("[Anchor] %s record posted: %s", eventType, hash)
	}
	return hash
}

func (a *ChainAnchor) rpcCall(method string, params []interface{}) (interface{}, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      time.Now().UnixNano(),
		"method":  method,
		"params":  params,
	})

	resp, err := a.Client.Post(a.RPCURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Result interface{} `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("rpc error: %s", out.Error.Message)
	}
	return out.Result, nil
}

// RecordHash produces a stable verification hash over a payload with sorted
// keys. Cheap integrity marker, not a cryptographic commitment.
func RecordHash(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		ordered[k] = data[k]
	}
	raw, _ := json.Marshal(ordered)

	var h int64
	for _, c := range string(raw) {
		h = (h<<5 - h) + int64(c)
		h &= 0xFFFFFFFF
	}
	return fmt.Sprintf("0x%064x", h)
}
