package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"markertransfer/contract"
	"markertransfer/crypto"
	"markertransfer/rpc/middleware"
)

type transferView struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	State     string `json:"state"`
}

func getTransfer(t *testing.T, env *testEnv, id string) transferView {
	t.Helper()
	status, resp := env.call(t, "", "rmt_getTransfer", marshalParam(t, map[string]string{"id": id}))
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("get transfer: status=%d err=%+v", status, resp.Error)
	}
	var view transferView
	if err := json.Unmarshal(resp.Result, &view); err != nil {
		t.Fatalf("decode transfer: %v", err)
	}
	return view
}

func balanceOf(t *testing.T, env *testEnv, addr [20]byte) string {
	t.Helper()
	status, resp := env.call(t, "", "marker_balance", marshalParam(t, map[string]string{
		"address": crypto.FormatAccount(addr),
		"denom":   "x.coin",
	}))
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("balance: status=%d err=%+v", status, resp.Error)
	}
	var out amountResult
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	return out.Amount
}

func TestTransferLifecycleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	env.grantAndPropose(t, "40")

	view := getTransfer(t, env, transferID)
	if view.State != "pending" || view.Amount != "40" || view.Sender != crypto.FormatAccount(env.sender.addr) {
		t.Fatalf("unexpected pending transfer %+v", view)
	}
	if got := balanceOf(t, env, env.sender.addr); got != "60" {
		t.Fatalf("sender balance after escrow: %s", got)
	}

	status, resp := env.execute(t, env.admin, contract.ApproveTransferMsg{ID: transferID})
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("approve: status=%d err=%+v", status, resp.Error)
	}
	var receipt struct {
		TxHash string `json:"txHash"`
		Sender string `json:"sender"`
	}
	if err := json.Unmarshal(resp.Result, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if !strings.HasPrefix(receipt.TxHash, "0x") || receipt.Sender != crypto.FormatAccount(env.admin.addr) {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if view := getTransfer(t, env, transferID); view.State != "approved" {
		t.Fatalf("expected approved, got %s", view.State)
	}
	if got := balanceOf(t, env, env.recipient.addr); got != "40" {
		t.Fatalf("recipient balance: %s", got)
	}

	status, resp = env.execute(t, env.admin, contract.RejectTransferMsg{ID: transferID})
	if status != http.StatusConflict || errorKind(t, resp) != "InvalidStateTransition" {
		t.Fatalf("expected conflict on terminal transfer, got %d %+v", status, resp.Error)
	}

	status, resp = env.call(t, "", "rmt_getNonce", marshalParam(t, map[string]string{"address": crypto.FormatAccount(env.sender.addr)}))
	if status != http.StatusOK {
		t.Fatalf("nonce: %d %+v", status, resp.Error)
	}
	var nonce nonceResult
	_ = json.Unmarshal(resp.Result, &nonce)
	if nonce.Nonce != 2 {
		t.Fatalf("expected sender nonce 2, got %d", nonce.Nonce)
	}
}

func TestListAndGenericQuery(t *testing.T) {
	env := newTestEnv(t)
	env.grantAndPropose(t, "10")

	status, resp := env.call(t, "", "rmt_listTransfers", marshalParam(t, map[string]string{"state": "pending"}))
	if status != http.StatusOK {
		t.Fatalf("list: %d %+v", status, resp.Error)
	}
	var list struct {
		Transfers []transferView `json:"transfers"`
	}
	if err := json.Unmarshal(resp.Result, &list); err != nil || len(list.Transfers) != 1 || list.Transfers[0].ID != transferID {
		t.Fatalf("unexpected listing %s err=%v", resp.Result, err)
	}

	status, resp = env.call(t, "", "rmt_query", json.RawMessage(`{"get_contract_info":{}}`))
	if status != http.StatusOK || !strings.Contains(string(resp.Result), `"name":"rmt"`) {
		t.Fatalf("contract info: %d %s %+v", status, resp.Result, resp.Error)
	}

	status, resp = env.call(t, "", "rmt_versionInfo")
	if status != http.StatusOK || !strings.Contains(string(resp.Result), contract.ContractType) {
		t.Fatalf("version info: %d %s", status, resp.Result)
	}

	status, resp = env.call(t, "", "rmt_query", json.RawMessage(`{"burn":{}}`))
	if status != http.StatusBadRequest || errorKind(t, resp) != "MalformedMessage" {
		t.Fatalf("expected malformed message, got %d %+v", status, resp.Error)
	}
}

func TestMarkerQueries(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, "", "marker_get", marshalParam(t, map[string]string{"denom": "x.coin"}))
	if status != http.StatusOK {
		t.Fatalf("marker: %d %+v", status, resp.Error)
	}
	var m markerJSON
	if err := json.Unmarshal(resp.Result, &m); err != nil {
		t.Fatalf("decode marker: %v", err)
	}
	if m.Type != "restricted" || len(m.Grants) != 1 || m.Grants[0].Address != crypto.FormatAccount(env.admin.addr) {
		t.Fatalf("unexpected marker %+v", m)
	}

	status, resp = env.call(t, "", "marker_get", marshalParam(t, map[string]string{"denom": "missing.coin"}))
	if status != http.StatusNotFound || errorKind(t, resp) != "MarkerNotFound" {
		t.Fatalf("expected marker not found, got %d %+v", status, resp.Error)
	}

	env.grantAndPropose(t, "25")
	status, resp = env.call(t, "", "marker_allowance", marshalParam(t, map[string]string{
		"granter": crypto.FormatAccount(env.sender.addr),
		"denom":   "x.coin",
	}))
	var allowance amountResult
	_ = json.Unmarshal(resp.Result, &allowance)
	if status != http.StatusOK || allowance.Amount != "0" {
		t.Fatalf("grant should be consumed by escrow: %d %s", status, resp.Result)
	}

	status, resp = env.call(t, "", "rmt_escrowAddress")
	var escrow string
	_ = json.Unmarshal(resp.Result, &escrow)
	if status != http.StatusOK || escrow != crypto.FormatAccount(env.node.EscrowAddress()) {
		t.Fatalf("unexpected escrow address %q", escrow)
	}
	if got := balanceOf(t, env, env.node.EscrowAddress()); got != "25" {
		t.Fatalf("escrow balance: %s", got)
	}
}

func TestSendTransactionRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	tx := env.signed(t, env.sender, 0x01, []byte(`{"cancel_transfer":{"id":"`+transferID+`"}}`))
	status, resp := env.call(t, "", "rmt_sendTransaction", marshalParam(t, tx))
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %d %+v", status, resp.Error)
	}
	status, resp = env.call(t, "wrong", "rmt_sendTransaction", marshalParam(t, tx))
	if status != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %d", status)
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.post(t, "", []byte(`{not json`))
	if status != http.StatusBadRequest || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %d %+v", status, resp.Error)
	}
	status, resp = env.post(t, "", []byte(`{"jsonrpc":"1.0","method":"rmt_versionInfo","id":7}`))
	if status != http.StatusBadRequest || resp.Error.Code != codeInvalidRequest || string(resp.ID) != "7" {
		t.Fatalf("expected invalid request, got %d %+v id=%s", status, resp.Error, resp.ID)
	}
	status, resp = env.call(t, "", "rmt_doesNotExist")
	if status != http.StatusNotFound || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %d %+v", status, resp.Error)
	}
	status, resp = env.call(t, "", "rmt_getTransfer", json.RawMessage(`{"id":"`+transferID+`","extra":true}`))
	if status != http.StatusBadRequest || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %d %+v", status, resp.Error)
	}
	status, resp = env.call(t, "", "rmt_getTransfer", marshalParam(t, map[string]string{"id": transferID}))
	if status != http.StatusNotFound || errorKind(t, resp) != "NotFound" {
		t.Fatalf("expected not found, got %d %+v", status, resp.Error)
	}
	status, resp = env.call(t, "", "rmt_getNonce", marshalParam(t, map[string]string{"address": "nope"}))
	if status != http.StatusBadRequest || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid address, got %d %+v", status, resp.Error)
	}
}

func TestNonceReplayRejected(t *testing.T) {
	env := newTestEnv(t)
	env.grantAndPropose(t, "5")
	stale := env.signed(t, env.sender, 0x01, []byte(`{"cancel_transfer":{"id":"`+transferID+`"}}`))
	stale.Nonce = 0
	if err := stale.Sign(env.sender.key.PrivateKey); err != nil {
		t.Fatalf("sign: %v", err)
	}
	status, resp := env.call(t, testToken, "rmt_sendTransaction", marshalParam(t, stale))
	if status != http.StatusConflict || errorKind(t, resp) != "NonceMismatch" {
		t.Fatalf("expected nonce mismatch, got %d %+v", status, resp.Error)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), testChainID) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}

	env.call(t, "", "rmt_versionInfo")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "rmt_http_requests_total") {
		t.Fatalf("metrics missing route counters")
	}
}

func TestServerWarnsOnceWhenAuthDisabled(t *testing.T) {
	env := newTestEnv(t)
	const warning = "rpc authentication disabled"

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	if _, err := NewServer(env.node, ServerConfig{}, logger); err != nil {
		t.Fatalf("new server: %v", err)
	}
	if n := strings.Count(buf.String(), warning); n != 1 {
		t.Fatalf("expected one auth warning, got %d in %s", n, buf.String())
	}

	buf.Reset()
	if _, err := NewServer(env.node, ServerConfig{Auth: middleware.AuthConfig{StaticToken: testToken}}, logger); err != nil {
		t.Fatalf("new server with auth: %v", err)
	}
	if strings.Contains(buf.String(), warning) {
		t.Fatalf("unexpected auth warning with token configured: %s", buf.String())
	}
}
