// Package archive stores analysed flights on disk as zstd-compressed msgpack.
//
// Files are laid out as <dir>/<icao24>/<unix>-<run id>.msgpack.zst so that a
// lexical sort of one aircraft's directory is chronological.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unklstewy/ads-bfuel/pkg/logger"
	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// Ext is the file extension of archive records.
const Ext = ".msgpack.zst"

// ErrNotFound is returned when an aircraft has no archived records.
var ErrNotFound = errors.New("no archived records")

// Record is one archived analysis.
type Record struct {
	RunID     string    `msgpack:"run_id"`
	CreatedAt time.Time `msgpack:"created_at"`
	EngineID  string    `msgpack:"engine_id"`

	// Trace is the segmented input series (phase, leg and distance columns)
	Trace trace.Series `msgpack:"trace"`

	// Legs are the integrated legs with fuel and emission columns
	Legs []trace.Series `msgpack:"legs"`
}

// Encode writes rec to w as msgpack compressed with zstd.
func Encode(w io.Writer, rec *Record, level zstd.EncoderLevel) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer zw.Close()

	if err := msgpack.NewEncoder(zw).Encode(rec); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// Decode reads a record written by Encode.
func Decode(r io.Reader) (*Record, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var rec Record
	if err := msgpack.NewDecoder(zr).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

// ParseLevel maps fastest, default, better or best to a zstd level.
func ParseLevel(name string) (zstd.EncoderLevel, error) {
	if name == "" {
		return zstd.SpeedDefault, nil
	}
	ok, level := zstd.EncoderLevelFromString(name)
	if !ok {
		return 0, fmt.Errorf("unknown compression level: %q", name)
	}
	return level, nil
}

// Store is a directory of archived records.
type Store struct {
	dir   string
	level zstd.EncoderLevel
	log   *logger.Logger
}

// Open creates the archive directory if needed.
func Open(dir, level string, log *logger.Logger) (*Store, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{dir: dir, level: lvl, log: log.Named("archive")}, nil
}

// Dir returns the archive root.
func (s *Store) Dir() string { return s.dir }

// Write stores rec and returns its path. The file appears atomically.
func (s *Store) Write(rec *Record) (string, error) {
	icao := strings.ToLower(rec.Trace.ICAO24)
	if icao == "" || rec.RunID == "" {
		return "", fmt.Errorf("record needs an aircraft address and a run id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	dir := filepath.Join(s.dir, icao)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, rec, s.level); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d-%s%s", rec.CreatedAt.Unix(), rec.RunID, Ext))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move archive file: %w", err)
	}

	s.log.Debug("archived analysis", logger.String("path", path), logger.Int("legs", len(rec.Legs)))
	return path, nil
}

// Read loads the record at path.
func (s *Store) Read(path string) (*Record, error) {
	return ReadFile(path)
}

// ReadFile loads a record from any path.
func ReadFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// List returns the record paths of an aircraft, oldest first.
func (s *Store) List(icao24 string) ([]string, error) {
	dir := filepath.Join(s.dir, strings.ToLower(icao24))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), Ext) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Latest returns the newest record of an aircraft.
func (s *Store) Latest(icao24 string) (*Record, error) {
	paths, err := s.List(icao24)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", icao24, ErrNotFound)
	}
	return s.Read(paths[len(paths)-1])
}
