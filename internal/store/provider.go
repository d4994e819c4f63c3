package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dyuri/mwmcodec/internal/feature"
)

// ErrUnknownStore is returned for a tag that names no store.
var ErrUnknownStore = errors.New("unknown store")

// Appender appends encoded geometry to a per-scale store and returns the
// byte offset it starts at.
type Appender interface {
	Append(tag string, data []byte) (uint32, error)
}

// Sink receives everything a dataset build produces.
type Sink interface {
	Appender
	AppendRecord(rec []byte) (uint32, error)
}

func checkOffset(tag string, size int64, n int) (uint32, error) {
	// InvalidOffset is reserved for absent slots
	if size+int64(n) >= int64(feature.InvalidOffset) {
		return 0, fmt.Errorf("store %s exceeds %d bytes", tag, uint32(math.MaxUint32-1))
	}
	return uint32(size), nil
}

// Memory keeps every store and the feature records in memory. It is safe
// for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	stores  map[string][]byte
	records bytes.Buffer
	recs    *RecordWriter
}

// NewMemory returns an empty in-memory store set.
func NewMemory() *Memory {
	m := &Memory{stores: make(map[string][]byte)}
	m.recs = NewRecordWriter(&m.records)
	return m
}

// AppendRecord appends a length-prefixed feature record.
func (m *Memory) AppendRecord(rec []byte) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	off, err := m.recs.Append(rec)
	if err != nil {
		return 0, err
	}
	return off, m.recs.Flush()
}

// Records returns the feature record file contents.
func (m *Memory) Records() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records.Bytes()
}

// Append implements Appender.
func (m *Memory) Append(tag string, data []byte) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	off, err := checkOffset(tag, int64(len(m.stores[tag])), len(data))
	if err != nil {
		return 0, err
	}
	m.stores[tag] = append(m.stores[tag], data...)
	return off, nil
}

// Reader implements feature.ReaderProvider.
func (m *Memory) Reader(tag string) (io.ReaderAt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.stores[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, tag)
	}
	return bytes.NewReader(data), nil
}

// Bytes returns the contents of a store, or nil when it does not exist.
func (m *Memory) Bytes(tag string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stores[tag]
}

// Tags lists the stores that have been written.
func (m *Memory) Tags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tags := make([]string, 0, len(m.stores))
	for tag := range m.stores {
		tags = append(tags, tag)
	}
	return tags
}

func storePath(dir, tag string) (string, error) {
	if tag == "" || strings.ContainsAny(tag, `/\`) || tag == HeaderFile || tag == FeaturesFile {
		return "", fmt.Errorf("%w: %q", ErrUnknownStore, tag)
	}
	return filepath.Join(dir, tag), nil
}

// Dir serves stores from files named by their tag inside a directory.
// Files are opened on first use and kept open until Close. Dir is safe
// for concurrent use.
type Dir struct {
	dir string
	log logrus.FieldLogger

	mu    sync.Mutex
	files map[string]*os.File
}

// NewDir returns a provider over the store files in dir.
func NewDir(dir string, log logrus.FieldLogger) *Dir {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dir{dir: dir, log: log, files: make(map[string]*os.File)}
}

// Reader implements feature.ReaderProvider.
func (d *Dir) Reader(tag string) (io.ReaderAt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.files[tag]; ok {
		return f, nil
	}

	path, err := storePath(d.dir, tag)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d.log.WithField("store", tag).Debug("opened store")
	d.files[tag] = f
	return f, nil
}

// Close closes every opened store file.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for tag, f := range d.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", tag, err))
		}
		delete(d.files, tag)
	}
	return errors.Join(errs...)
}
