package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"markertransfer/contract"
	"markertransfer/integrations/exports"
	"markertransfer/native/transfer"
)

const exportPageSize = 100

var exportNow = time.Now

func bindListFlags(fs *flag.FlagSet, args []string) (contract.GetAllTransfersQuery, bool) {
	var q contract.GetAllTransfersQuery
	var limit uint
	fs.StringVar(&q.State, "state", "", "pending, approved, rejected or cancelled")
	fs.StringVar(&q.Sender, "sender", "", "sender address")
	fs.StringVar(&q.Recipient, "recipient", "", "recipient address")
	fs.StringVar(&q.Denom, "denom", "", "marker denom")
	fs.StringVar(&q.StartAfter, "start-after", "", "resume after this transfer id")
	fs.UintVar(&limit, "limit", 0, "maximum transfers to return (0 for all)")
	if err := fs.Parse(args); err != nil {
		return q, false
	}
	q.Limit = uint32(limit)
	return q, true
}

func runExportCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, exportUsage())
		return 1
	}
	format := args[0]
	if format != "csv" && format != "jsonl" && format != "parquet" {
		fmt.Fprintf(stderr, "Unknown export format: %s\n", format)
		fmt.Fprintln(stderr, exportUsage())
		return 1
	}
	fs := newFlagSet("export "+format, stderr, exportUsage)
	var out string
	fs.StringVar(&out, "out", "", "output file (stdout when empty)")
	q, ok := bindListFlags(fs, args[1:])
	if !ok {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	if err := q.Validate(); err != nil {
		return printError(stderr, err.Error())
	}

	transfers, rpcErr, err := collectTransfers(q)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var data []byte
	var sum string
	switch format {
	case "csv":
		data, sum, err = exports.TransfersCSV(transfers, exportNow())
	case "parquet":
		data, sum, err = exports.TransfersParquet(transfers, exportNow())
	default:
		data, sum, err = exports.TransfersJSONL(transfers, exportNow())
	}
	if err != nil {
		return printError(stderr, err.Error())
	}
	if strings.TrimSpace(out) == "" {
		_, _ = stdout.Write(data)
		return 0
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return printError(stderr, fmt.Sprintf("write %s: %v", out, err))
	}
	fmt.Fprintf(stdout, "exported %d transfers to %s (sha256 %s)\n", len(transfers), out, sum)
	return 0
}

// collectTransfers pages through rmt_listTransfers. A positive q.Limit caps
// the total; zero exports everything.
func collectTransfers(q contract.GetAllTransfersQuery) ([]*transfer.Transfer, *rpcError, error) {
	total := q.Limit
	var all []*transfer.Transfer
	for {
		page := q
		page.Limit = exportPageSize
		if total > 0 {
			remaining := total - uint32(len(all))
			if remaining < page.Limit {
				page.Limit = remaining
			}
		}
		var list contract.TransferList
		if rpcErr, err := callInto("rmt_listTransfers", page, &list); err != nil || rpcErr != nil {
			return nil, rpcErr, err
		}
		all = append(all, list.Transfers...)
		if list.NextStartAfter == "" || (total > 0 && uint32(len(all)) >= total) {
			return all, nil, nil
		}
		q.StartAfter = list.NextStartAfter
	}
}

func exportUsage() string {
	return strings.TrimSpace(`Usage:
  rmt-cli export csv|jsonl|parquet [--out FILE] [list filters]
`)
}
