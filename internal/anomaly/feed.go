package anomaly

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONLFeed appends anomaly records to an append-only file, one JSON object
// per line. The feed is best-effort: the engine logs append failures but
// never lets them affect the anomaly table or the evaluation cursor.
type JSONLFeed struct {
	path string
}

// NewJSONLFeed creates a feed writing to the file at path. The file is
// created on first append.
func NewJSONLFeed(path string) *JSONLFeed {
	return &JSONLFeed{path: path}
}

// Append writes every record as one line. Records already written before a
// failure stay in the feed; the feed is a log, not a transaction.
func (f *JSONLFeed) Append(records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	out, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening event feed: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing event feed: %w", cErr)
		}
	}()

	enc := json.NewEncoder(out)
	for _, rec := range records {
		if err = enc.Encode(rec); err != nil {
			return fmt.Errorf("appending anomaly (packet=%d, tag=%s): %w", rec.PacketID, rec.Tag, err)
		}
	}
	return nil
}
