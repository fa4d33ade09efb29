// Package benefit forwards escrow benefit claims to partner webhooks, one
// endpoint per target contract address.
package benefit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftlend-backend/internal/domain/collateral"
)

var ErrNoHandler = errors.New("execution reverted: target has no handler")

// maxResponse caps the body read from a partner.
const maxResponse = 64 << 10

type request struct {
	Escrow  common.Address `json:"escrow"`
	Target  common.Address `json:"target"`
	Payload hexutil.Bytes  `json:"payload"`
}

type response struct {
	Result hexutil.Bytes `json:"result"`
	Error  string        `json:"error,omitempty"`
}

// WebhookCaller posts the claim to the target's endpoint. A non-2xx status or
// an "error" field in the reply counts as a revert.
type WebhookCaller struct {
	client *http.Client
	hooks  map[common.Address]string
}

var _ collateral.BenefitCaller = (*WebhookCaller)(nil)

// NewWebhookCaller takes hooks keyed by hex target address.
func NewWebhookCaller(hooks map[string]string, timeout time.Duration) *WebhookCaller {
	m := make(map[common.Address]string, len(hooks))
	for addr, url := range hooks {
		m[common.HexToAddress(addr)] = url
	}
	return &WebhookCaller{client: &http.Client{Timeout: timeout}, hooks: m}
}

func (w *WebhookCaller) Call(ctx context.Context, escrow, target common.Address, payload []byte) ([]byte, error) {
	url, ok := w.hooks[target]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoHandler, target.Hex())
	}
	body, err := json.Marshal(request{Escrow: escrow, Target: target, Payload: payload})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("execution reverted: %s", resp.Status)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode benefit reply: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("execution reverted: %s", out.Error)
	}
	return out.Result, nil
}
