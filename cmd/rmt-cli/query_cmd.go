package main

import (
	"io"
	"strings"

	"markertransfer/contract"
)

func runGetCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get", stderr, queryUsage)
	var id string
	fs.StringVar(&id, "id", "", "transfer id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	q := contract.GetTransferQuery{ID: strings.TrimSpace(id)}
	if err := q.Validate(); err != nil {
		return printError(stderr, err.Error())
	}
	return query("rmt_getTransfer", map[string]string{"id": q.ID}, stdout, stderr)
}

func runListCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr, queryUsage)
	q, ok := bindListFlags(fs, args)
	if !ok {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	if err := q.Validate(); err != nil {
		return printError(stderr, err.Error())
	}
	return query("rmt_listTransfers", q, stdout, stderr)
}

func runSimpleQuery(method string, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	return query(method, nil, stdout, stderr)
}

func runBalanceCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr, queryUsage)
	var address, denom string
	fs.StringVar(&address, "address", "", "account address")
	fs.StringVar(&denom, "denom", "", "marker denom")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(address) == "" || strings.TrimSpace(denom) == "" {
		return printError(stderr, "--address and --denom are required")
	}
	return query("marker_balance", map[string]string{"address": address, "denom": denom}, stdout, stderr)
}

func runAllowanceCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("allowance", stderr, queryUsage)
	var granter, denom string
	fs.StringVar(&granter, "granter", "", "granting account address")
	fs.StringVar(&denom, "denom", "", "marker denom")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(granter) == "" || strings.TrimSpace(denom) == "" {
		return printError(stderr, "--granter and --denom are required")
	}
	return query("marker_allowance", map[string]string{"granter": granter, "denom": denom}, stdout, stderr)
}

func runMarkerCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("marker", stderr, queryUsage)
	var denom string
	fs.StringVar(&denom, "denom", "", "marker denom")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(denom) == "" {
		return printError(stderr, "--denom is required")
	}
	return query("marker_get", map[string]string{"denom": denom}, stdout, stderr)
}

func query(method string, params interface{}, stdout, stderr io.Writer) int {
	result, rpcErr, err := rpcCall(method, params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func queryUsage() string {
	return strings.TrimSpace(`Usage:
  rmt-cli get --id UUID
  rmt-cli list [--state S] [--sender A] [--recipient A] [--denom D] [--start-after UUID] [--limit N]
  rmt-cli info | version | escrow
  rmt-cli balance --address A --denom D
  rmt-cli allowance --granter A --denom D
  rmt-cli marker --denom D
`)
}
