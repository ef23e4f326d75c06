package exports

import (
	"bytes"
	"encoding/json"
	"time"

	"markertransfer/native/transfer"
)

// TransfersJSONL builds a JSON Lines export of the supplied transfers and
// returns the serialised payload alongside a checksum.
func TransfersJSONL(transfers []*transfer.Transfer, exportedAt time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	stamp := exportStamp(exportedAt)
	for _, t := range transfers {
		if t == nil {
			continue
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, "", err
		}
		var line map[string]interface{}
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, "", err
		}
		line["exported_at"] = stamp
		if err := encoder.Encode(line); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}
