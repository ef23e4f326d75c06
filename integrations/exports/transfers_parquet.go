package exports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"markertransfer/crypto"
	"markertransfer/native/transfer"
)

type parquetRow struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Denom      string `parquet:"name=denom, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount     string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sender     string `parquet:"name=sender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Recipient  string `parquet:"name=recipient, type=BYTE_ARRAY, convertedtype=UTF8"`
	State      string `parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExportedAt string `parquet:"name=exported_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TransfersParquet builds a Snappy-compressed Parquet export with the same
// columns as the CSV export. Amounts stay decimal strings since they can
// exceed 64 bits.
func TransfersParquet(transfers []*transfer.Transfer, exportedAt time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(buffer), new(parquetRow), 1)
	if err != nil {
		return nil, "", fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	stamp := exportStamp(exportedAt)
	for _, t := range transfers {
		if t == nil {
			continue
		}
		row := &parquetRow{
			ID:         t.ID,
			Denom:      t.Denom,
			Amount:     amountString(t),
			Sender:     crypto.FormatAccount(t.Sender),
			Recipient:  crypto.FormatAccount(t.Recipient),
			State:      t.Status.String(),
			ExportedAt: stamp,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, "", fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, "", fmt.Errorf("exports: parquet flush: %w", err)
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}
