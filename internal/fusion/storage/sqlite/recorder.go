// Package sqlite records published fusion output for offline replay and
// analysis.
package sqlite

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/binary"
	_ "embed"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/gridfuse/internal/fusion"
)

// schema.sql defines the fusion_run and fusion_output tables.
//
//go:embed schema.sql
var schemaSQL string

// Recorder persists one row per published output raster, grouped under a
// run id minted at open time. It satisfies the fusion.Publisher interface
// so it can be fanned out next to the network publisher.
type Recorder struct {
	db    *sql.DB
	runID string
}

// RecordedOutput is one persisted fused raster.
type RecordedOutput struct {
	RunID      string
	OutputName string
	Raster     *fusion.Raster
}

// NewRecorder opens (creating if needed) the database at path and starts
// a new run annotated with the given config JSON.
func NewRecorder(path, configJSON string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	runID := uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO fusion_run (run_id, started_unix_nanos, config_json) VALUES (?, ?, ?)`,
		runID, time.Now().UnixNano(), configJSON,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create run: %w", err)
	}

	return &Recorder{db: db, runID: runID}, nil
}

// RunID returns the id of the current recording run.
func (r *Recorder) RunID() string { return r.runID }

// Close releases the database handle.
func (r *Recorder) Close() error { return r.db.Close() }

// Publish records one fused output raster.
func (r *Recorder) Publish(name string, raster *fusion.Raster) error {
	if raster.Empty() {
		return fmt.Errorf("record %q: empty raster", name)
	}
	blob, err := compressCells(raster.Cells)
	if err != nil {
		return fmt.Errorf("record %q: %w", name, err)
	}
	_, err = r.db.Exec(
		`INSERT INTO fusion_output (run_id, output_name, stamp_unix_nanos, width, height, resolution, origin_x, origin_y, cells_blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, name, raster.Stamp.UnixNano(),
		raster.Width, raster.Height, raster.Resolution,
		raster.OriginX, raster.OriginY, blob,
	)
	if err != nil {
		return fmt.Errorf("record %q: %w", name, err)
	}
	return nil
}

// LatestOutput returns the most recently recorded raster for an output
// name within the current run, or sql.ErrNoRows if none was recorded.
func (r *Recorder) LatestOutput(name string) (*RecordedOutput, error) {
	row := r.db.QueryRow(
		`SELECT stamp_unix_nanos, width, height, resolution, origin_x, origin_y, cells_blob
		 FROM fusion_output
		 WHERE run_id = ? AND output_name = ?
		 ORDER BY stamp_unix_nanos DESC, output_id DESC
		 LIMIT 1`,
		r.runID, name,
	)

	var stamp int64
	var width, height int
	var resolution, originX, originY float64
	var blob []byte
	if err := row.Scan(&stamp, &width, &height, &resolution, &originX, &originY, &blob); err != nil {
		return nil, err
	}

	cells, err := decompressCells(blob, width*height)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", name, err)
	}

	raster := fusion.NewRaster(width, height, resolution)
	raster.Channel = name
	raster.OriginX = originX
	raster.OriginY = originY
	raster.Stamp = time.Unix(0, stamp)
	raster.Cells = cells
	return &RecordedOutput{RunID: r.runID, OutputName: name, Raster: raster}, nil
}

// compressCells gzips the float64 cells in little-endian order.
func compressCells(cells []float64) ([]byte, error) {
	raw := make([]byte, 8*len(cells))
	for i, v := range cells {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompressCells reverses compressCells, validating the cell count.
func decompressCells(blob []byte, count int) ([]float64, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if len(raw) != 8*count {
		return nil, fmt.Errorf("blob holds %d bytes, expected %d", len(raw), 8*count)
	}

	cells := make([]float64, count)
	for i := range cells {
		cells[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return cells, nil
}
