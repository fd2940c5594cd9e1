package jupiter

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetQuote(t *testing.T) {
	var receivedQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		receivedQuery = r.URL.RawQuery

		w.Write([]byte(`{"inputMint": "abc", "outputMint": "def", "otherAmountThreshold": "123456"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/")

	quote, err := client.GetQuote(context.Background(), "abc", "def", 1_000_000, 50, false, 32, false)
	require.NoError(t, err)

	assert.EqualValues(t, 123456, quote.GetEstimatedSwapAmount())
	assert.Contains(t, receivedQuery, "inputMint=abc")
	assert.Contains(t, receivedQuery, "outputMint=def")
	assert.Contains(t, receivedQuery, "amount=1000000")
	assert.Contains(t, receivedQuery, "slippageBps=50")
}

func TestClient_GetQuoteHttpError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid mint"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/")

	_, err := client.GetQuote(context.Background(), "abc", "def", 1_000_000, 50, false, 32, false)
	assert.Error(t, err)
}

func TestClient_GetSwapInstructions(t *testing.T) {
	program := newTestPublicKey(t)
	account := newTestPublicKey(t)
	data := []byte{1, 2, 3, 4}

	jsonIxn := fmt.Sprintf(
		`{"programId": "%s", "accounts": [{"pubkey": "%s", "isSigner": true, "isWritable": false}], "data": "%s"}`,
		base58.Encode(program),
		base58.Encode(account),
		base64.StdEncoding.EncodeToString(data),
	)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap-instructions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		fmt.Fprintf(
			w,
			`{"computeBudgetInstructions": [%s], "setupInstructions": [%s, %s], "swapInstruction": %s, "cleanupInstruction": %s}`,
			jsonIxn, jsonIxn, jsonIxn, jsonIxn, jsonIxn,
		)
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/")

	quote := &Quote{jsonString: `{}`}
	res, err := client.GetSwapInstructions(context.Background(), quote, base58.Encode(account), base58.Encode(account))
	require.NoError(t, err)

	assert.Len(t, res.ComputeBudgetInstructions, 1)
	assert.Len(t, res.SetupInstructions, 2)
	require.NotNil(t, res.CleanupInstruction)

	assert.EqualValues(t, program, res.SwapInstruction.Program)
	assert.Equal(t, data, res.SwapInstruction.Data)
	require.Len(t, res.SwapInstruction.Accounts, 1)
	assert.EqualValues(t, account, res.SwapInstruction.Accounts[0].PublicKey)
	assert.True(t, res.SwapInstruction.Accounts[0].IsSigner)
	assert.False(t, res.SwapInstruction.Accounts[0].IsWritable)
}

func TestClient_GetSwapInstructionsMissingSwapInstruction(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"setupInstructions": []}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/")

	_, err := client.GetSwapInstructions(context.Background(), &Quote{jsonString: `{}`}, "owner", "destination")
	assert.Error(t, err)
}

func newTestPublicKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}
