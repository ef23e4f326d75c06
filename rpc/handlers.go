package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"markertransfer/contract"
	"markertransfer/core/types"
	"markertransfer/crypto"
	"markertransfer/native/marker"
	"markertransfer/rpc/middleware"
)

type idParams struct {
	ID string `json:"id"`
}

type accountParams struct {
	Address string `json:"address"`
}

type balanceParams struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
}

type allowanceParams struct {
	Granter string `json:"granter"`
	Denom   string `json:"denom"`
}

type denomParams struct {
	Denom string `json:"denom"`
}

type nonceResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

type amountResult struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
	Amount  string `json:"amount"`
}

type grantJSON struct {
	Address     string   `json:"address"`
	Permissions []string `json:"permissions"`
}

type markerJSON struct {
	Denom  string      `json:"denom"`
	Type   string      `json:"type"`
	Grants []grantJSON `json:"grants"`
}

func formatMarker(m *marker.Marker) markerJSON {
	out := markerJSON{Denom: m.Denom, Type: m.Type.String(), Grants: make([]grantJSON, 0, len(m.Grants))}
	for _, g := range m.Grants {
		perms := make([]string, len(g.Permissions))
		for i, p := range g.Permissions {
			perms[i] = string(p)
		}
		out.Grants = append(out.Grants, grantJSON{Address: crypto.FormatAccount(g.Address), Permissions: perms})
	}
	return out
}

func parseAccountParam(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseAccount(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %v", field, err)
	}
	return addr, nil
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if s.auth.Enabled() {
		if _, err := s.auth.Verify(r); err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, middleware.ErrInsufficientScope) {
				status = http.StatusForbidden
			}
			writeError(w, status, req.ID, codeUnauthorized, err.Error(), nil)
			return status
		}
	}
	if len(req.Params) != 1 {
		return s.invalidParams(w, req, fmt.Errorf("expected exactly one transaction"))
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		return s.invalidParams(w, req, fmt.Errorf("invalid transaction: %w", err))
	}
	receipt, err := s.node.Execute(r.Context(), &tx)
	if err != nil {
		return s.writeNodeError(w, req, err)
	}
	writeResult(w, req.ID, receipt)
	return http.StatusOK
}

func (s *Server) query(w http.ResponseWriter, r *http.Request, req *RPCRequest, msg contract.QueryMsg) int {
	result, err := s.node.Query(r.Context(), msg)
	if err != nil {
		return s.writeNodeError(w, req, err)
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	var params idParams
	if err := decodeParam(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	return s.query(w, r, req, contract.GetTransferQuery{ID: strings.TrimSpace(params.ID)})
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	var params contract.GetAllTransfersQuery
	if len(req.Params) > 0 {
		if err := decodeParam(req, &params); err != nil {
			return s.invalidParams(w, req, err)
		}
	}
	return s.query(w, r, req, params)
}

func (s *Server) handleContractInfo(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	return s.query(w, r, req, contract.GetContractInfoQuery{})
}

func (s *Server) handleVersionInfo(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	return s.query(w, r, req, contract.GetVersionInfoQuery{})
}

// handleQuery accepts any tagged query message, e.g.
// {"get_all_transfers":{"state":"pending"}}.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		return s.invalidParams(w, req, fmt.Errorf("expected exactly one query message"))
	}
	msg, err := contract.ParseQueryMsg(req.Params[0])
	if err != nil {
		return s.writeNodeError(w, req, err)
	}
	return s.query(w, r, req, msg)
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	var params accountParams
	if err := decodeParam(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	addr, err := parseAccountParam("address", params.Address)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		return s.writeNodeError(w, req, err)
	}
	writeResult(w, req.ID, nonceResult{Address: crypto.FormatAccount(addr), Nonce: nonce})
	return http.StatusOK
}

func (s *Server) handleEscrowAddress(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	writeResult(w, req.ID, crypto.FormatAccount(s.node.EscrowAddress()))
	return http.StatusOK
}

func (s *Server) handleChainID(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	writeResult(w, req.ID, s.node.ChainID())
	return http.StatusOK
}

func (s *Server) handleMarkerGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	var params denomParams
	if err := decodeParam(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	m, err := s.node.Marker(strings.TrimSpace(params.Denom))
	if err != nil {
		return s.writeNodeError(w, req, err)
	}
	writeResult(w, req.ID, formatMarker(m))
	return http.StatusOK
}

func (s *Server) handleMarkerBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	var params balanceParams
	if err := decodeParam(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	addr, err := parseAccountParam("address", params.Address)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	denom := strings.TrimSpace(params.Denom)
	balance, err := s.node.Balance(addr, denom)
	if err != nil {
		return s.writeNodeError(w, req, err)
	}
	writeResult(w, req.ID, amountResult{Address: crypto.FormatAccount(addr), Denom: denom, Amount: balance.String()})
	return http.StatusOK
}

func (s *Server) handleMarkerAllowance(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	var params allowanceParams
	if err := decodeParam(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	granter, err := parseAccountParam("granter", params.Granter)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	denom := strings.TrimSpace(params.Denom)
	allowance, err := s.node.Allowance(granter, denom)
	if err != nil {
		return s.writeNodeError(w, req, err)
	}
	writeResult(w, req.ID, amountResult{Address: crypto.FormatAccount(granter), Denom: denom, Amount: allowance.String()})
	return http.StatusOK
}
