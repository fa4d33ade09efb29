package benefit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	escrow  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	airdrop = common.HexToAddress("0x00000000000000000000000000000000000000e9")
)

func TestWebhookCaller_ForwardsClaim(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result":"0xbeef"}`))
	}))
	defer srv.Close()

	c := NewWebhookCaller(map[string]string{airdrop.Hex(): srv.URL}, time.Second)
	res, err := c.Call(context.Background(), escrow, airdrop, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbe, 0xef}, res)
	assert.Equal(t, escrow, got.Escrow)
	assert.Equal(t, airdrop, got.Target)
	assert.Equal(t, []byte{0x01, 0x02}, []byte(got.Payload))
}

func TestWebhookCaller_Reverts(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusBadGateway)
			},
			want: "execution reverted: 502 Bad Gateway",
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"already claimed"}`))
			},
			want: "execution reverted: already claimed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := NewWebhookCaller(map[string]string{airdrop.Hex(): srv.URL}, time.Second)
			_, err := c.Call(context.Background(), escrow, airdrop, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestWebhookCaller_EmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewWebhookCaller(map[string]string{airdrop.Hex(): srv.URL}, time.Second)
	res, err := c.Call(context.Background(), escrow, airdrop, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestWebhookCaller_UnknownTarget(t *testing.T) {
	c := NewWebhookCaller(nil, time.Second)
	_, err := c.Call(context.Background(), escrow, airdrop, nil)
	assert.ErrorIs(t, err, ErrNoHandler)
}
