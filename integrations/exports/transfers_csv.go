package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"time"

	"markertransfer/crypto"
	"markertransfer/native/transfer"
)

var csvHeader = []string{"id", "denom", "amount", "sender", "recipient", "state", "exported_at"}

// TransfersCSV builds a CSV export of the supplied transfers and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func TransfersCSV(transfers []*transfer.Transfer, exportedAt time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	stamp := exportStamp(exportedAt)
	for _, t := range transfers {
		if t == nil {
			continue
		}
		record := []string{
			t.ID,
			t.Denom,
			amountString(t),
			crypto.FormatAccount(t.Sender),
			crypto.FormatAccount(t.Recipient),
			t.Status.String(),
			stamp,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

func amountString(t *transfer.Transfer) string {
	if t.Amount == nil {
		return "0"
	}
	return t.Amount.String()
}

func exportStamp(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return at.UTC().Format(time.RFC3339Nano)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
