package exports

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func TestTransfersParquet(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, sum, err := TransfersParquet(sampleTransfers(), at)
	if err != nil {
		t.Fatalf("parquet: %v", err)
	}
	if sum != checksum(data) {
		t.Fatalf("checksum mismatch")
	}
	if len(data) < 4 || string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatalf("output is not a parquet file")
	}

	path := filepath.Join(t.TempDir(), "transfers.parquet")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	file, err := local.NewLocalFileReader(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	pr, err := reader.NewParquetReader(file, new(parquetRow), 1)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer pr.ReadStop()
	if n := pr.GetNumRows(); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	rows := make([]parquetRow, 2)
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if rows[0].Amount != "40" || rows[0].State != "pending" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[1].State != "approved" || rows[1].ExportedAt != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
}
