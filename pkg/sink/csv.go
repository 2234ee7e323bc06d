package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Sternrassler/stat-client/pkg/table"
	"github.com/rs/zerolog/log"
)

// CSVDir writes each table to <Dir>/<name>-<date>.csv, replacing a file
// of the same day.
type CSVDir struct {
	Dir string

	// Now dates the file names (default time.Now).
	Now func() time.Time
}

// Path returns the file a table named name is written to.
func (c CSVDir) Path(name string) string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return filepath.Join(c.Dir, fmt.Sprintf("%s-%s.csv", name, now().Format("2006-01-02")))
}

// Write stores t as CSV.
func (c CSVDir) Write(_ context.Context, name string, t *table.Table) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return fmt.Errorf("create csv directory: %w", err)
	}

	path := c.Path(name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	log.Info().Str("table", name).Int("rows", t.Len()).Str("file", path).Msg("CSV written")
	return nil
}
