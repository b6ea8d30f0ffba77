package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vdp-1/cubesat-telemetry/internal/ingest"
)

var passLogHeader = []string{
	"run_iso",
	"processed",
	"framing_errors",
	"integrity_failures",
	"missing_packets",
	"duplicates",
	"flagged",
	"bytes_consumed",
}

// PassLog appends one CSV row per ingestion pass, for offline run history.
// The header is written when the file is created.
type PassLog struct {
	path string
	now  func() time.Time
}

// NewPassLog creates a pass log writing to the CSV file at path.
func NewPassLog(path string) *PassLog {
	return &PassLog{path: path, now: time.Now}
}

// Append writes one row with the pass counters and the current time.
func (l *PassLog) Append(m ingest.PassMetrics) (err error) {
	info, statErr := os.Stat(l.path)
	writeHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening pass log: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing pass log: %w", cErr)
		}
	}()

	w := csv.NewWriter(f)
	if writeHeader {
		if err = w.Write(passLogHeader); err != nil {
			return fmt.Errorf("writing pass log header: %w", err)
		}
	}

	row := []string{
		l.now().UTC().Format(time.RFC3339),
		strconv.Itoa(m.Processed),
		strconv.Itoa(m.FramingErrors),
		strconv.Itoa(m.IntegrityFailures),
		strconv.Itoa(m.MissingPackets),
		strconv.Itoa(m.Duplicates),
		strconv.Itoa(m.Flagged),
		strconv.FormatInt(m.BytesConsumed, 10),
	}
	if err = w.Write(row); err != nil {
		return fmt.Errorf("writing pass log row: %w", err)
	}

	w.Flush()
	if err = w.Error(); err != nil {
		return fmt.Errorf("flushing pass log: %w", err)
	}
	return nil
}
