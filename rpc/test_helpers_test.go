package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"markertransfer/contract"
	"markertransfer/core"
	"markertransfer/core/genesis"
	"markertransfer/core/types"
	"markertransfer/crypto"
	"markertransfer/rpc/middleware"
	"markertransfer/storage"
)

const (
	testChainID = "rmt-rpc-test"
	testToken   = "rpc-test-token"
	transferID  = "0f4c3b8a-1d2e-4f5a-9b6c-7d8e9f0a1b2c"
)

type testAccount struct {
	key  *crypto.PrivateKey
	addr [20]byte
}

func newTestAccount(t *testing.T) testAccount {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return testAccount{key: key, addr: key.PubKey().Address().Bytes()}
}

type testEnv struct {
	server    *Server
	node      *core.Node
	sender    testAccount
	admin     testAccount
	recipient testAccount
	nonces    map[[20]byte]uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, testChainID, contract.New(crypto.ModuleAddress(contract.ContractType)))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	env := &testEnv{
		node:      node,
		sender:    newTestAccount(t),
		admin:     newTestAccount(t),
		recipient: newTestAccount(t),
		nonces:    make(map[[20]byte]uint64),
	}
	spec := &genesis.GenesisSpec{
		GenesisTime: "2024-01-01T00:00:00Z",
		ChainID:     testChainID,
		Contract:    genesis.ContractSpec{Name: "rmt"},
		Markers: []genesis.MarkerSpec{
			{Denom: "x.coin", Type: "restricted", Grants: []genesis.GrantSpec{
				{Address: crypto.FormatAccount(env.admin.addr), Permissions: []string{"admin"}},
			}},
		},
		Alloc: map[string]map[string]string{
			crypto.FormatAccount(env.sender.addr): {"x.coin": "100"},
		},
	}
	if err := node.InitGenesis(spec); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	srv, err := NewServer(node, ServerConfig{Auth: middleware.AuthConfig{StaticToken: testToken}}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	node.SetEmitter(srv.Hub())
	env.server = srv
	return env
}

type rpcResult struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func marshalParam(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal param: %v", err)
	}
	return raw
}

func (e *testEnv) call(t *testing.T, token, method string, params ...json.RawMessage) (int, *rpcResult) {
	t.Helper()
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: params, ID: json.RawMessage("1")})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return e.post(t, token, body)
}

func (e *testEnv) post(t *testing.T, token string, body []byte) (int, *rpcResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:5000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	var resp rpcResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, &resp
}

func (e *testEnv) signed(t *testing.T, from testAccount, typ types.TxType, data []byte) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{Type: typ, ChainID: testChainID, Nonce: e.nonces[from.addr], Data: data}
	if err := tx.Sign(from.key.PrivateKey); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

// send submits a signed transaction over JSON-RPC and bumps the local nonce
// on success.
func (e *testEnv) send(t *testing.T, from testAccount, typ types.TxType, data []byte) (int, *rpcResult) {
	t.Helper()
	status, resp := e.call(t, testToken, "rmt_sendTransaction", marshalParam(t, e.signed(t, from, typ, data)))
	if resp.Error == nil {
		e.nonces[from.addr]++
	}
	return status, resp
}

func (e *testEnv) execute(t *testing.T, from testAccount, msg contract.ExecuteMsg) (int, *rpcResult) {
	t.Helper()
	data, err := contract.EncodeExecuteMsg(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return e.send(t, from, types.TxTypeExecute, data)
}

func (e *testEnv) grantAndPropose(t *testing.T, amount string) {
	t.Helper()
	grant, _ := json.Marshal(core.GrantPayload{Denom: "x.coin", Amount: amount})
	if status, resp := e.send(t, e.sender, types.TxTypeGrant, grant); resp.Error != nil {
		t.Fatalf("grant failed (%d): %+v", status, resp.Error)
	}
	msg := contract.TransferMsg{ID: transferID, Denom: "x.coin", Amount: amount, Recipient: crypto.FormatAccount(e.recipient.addr)}
	if status, resp := e.execute(t, e.sender, msg); resp.Error != nil {
		t.Fatalf("transfer failed (%d): %+v", status, resp.Error)
	}
}

func errorKind(t *testing.T, resp *rpcResult) string {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error response")
	}
	data, _ := json.Marshal(resp.Error.Data)
	var parsed errorData
	_ = json.Unmarshal(data, &parsed)
	return parsed.Kind
}
