package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dyuri/mwmcodec/internal/feature"
)

type storeFile struct {
	f    *os.File
	w    *bufio.Writer
	size int64
}

// DirWriter creates a dataset directory: the feature record file, one
// file per written store and the header, which is written on Close.
type DirWriter struct {
	dir    string
	header *feature.DatasetHeader
	log    logrus.FieldLogger

	mu       sync.Mutex
	features *os.File
	records  *RecordWriter
	stores   map[string]*storeFile
}

// CreateDir creates dir if needed and starts a dataset with header h.
func CreateDir(dir string, h *feature.DatasetHeader, log logrus.FieldLogger) (*DirWriter, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("validate header: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, FeaturesFile))
	if err != nil {
		return nil, fmt.Errorf("create features file: %w", err)
	}

	return &DirWriter{
		dir:      dir,
		header:   h,
		log:      log,
		features: f,
		records:  NewRecordWriter(f),
		stores:   make(map[string]*storeFile),
	}, nil
}

// Header returns the dataset header.
func (w *DirWriter) Header() *feature.DatasetHeader {
	return w.header
}

// Append implements Appender.
func (w *DirWriter) Append(tag string, data []byte) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sf, ok := w.stores[tag]
	if !ok {
		path, err := storePath(w.dir, tag)
		if err != nil {
			return 0, err
		}
		f, err := os.Create(path)
		if err != nil {
			return 0, fmt.Errorf("create store: %w", err)
		}
		w.log.WithField("store", tag).Debug("created store")
		sf = &storeFile{f: f, w: bufio.NewWriter(f)}
		w.stores[tag] = sf
	}

	off, err := checkOffset(tag, sf.size, len(data))
	if err != nil {
		return 0, err
	}
	if _, err := sf.w.Write(data); err != nil {
		return 0, fmt.Errorf("write %s: %w", tag, err)
	}
	sf.size += int64(len(data))
	return off, nil
}

// AppendRecord appends a feature record and returns its offset.
func (w *DirWriter) AppendRecord(rec []byte) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records.Append(rec)
}

// Close flushes every file and writes the header.
func (w *DirWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if err := w.records.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush features: %w", err))
	}
	if err := w.features.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close features: %w", err))
	}
	for tag, sf := range w.stores {
		if err := sf.w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", tag, err))
		}
		if err := sf.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", tag, err))
		}
		w.log.WithField("store", tag).WithField("bytes", sf.size).Debug("closed store")
	}
	w.stores = map[string]*storeFile{}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	f, err := os.Create(filepath.Join(w.dir, HeaderFile))
	if err != nil {
		return fmt.Errorf("create header file: %w", err)
	}
	if err := WriteHeader(f, w.header); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Dataset is a read-only view of a dataset directory.
type Dataset struct {
	Header *feature.DatasetHeader
	Stores *Dir

	features *os.File
}

// OpenDir opens the dataset in dir.
func OpenDir(dir string, log logrus.FieldLogger) (*Dataset, error) {
	hf, err := os.Open(filepath.Join(dir, HeaderFile))
	if err != nil {
		return nil, fmt.Errorf("open header file: %w", err)
	}
	defer hf.Close()

	h, err := ReadHeader(bufio.NewReader(hf))
	if err != nil {
		return nil, err
	}

	ff, err := os.Open(filepath.Join(dir, FeaturesFile))
	if err != nil {
		return nil, fmt.Errorf("open features file: %w", err)
	}

	return &Dataset{Header: h, Stores: NewDir(dir, log), features: ff}, nil
}

// ForEach calls fn with a reader for every feature record in file order.
func (d *Dataset) ForEach(fn func(r *feature.Reader) error) error {
	if _, err := d.features.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind features: %w", err)
	}
	return ReadRecords(d.features, func(offset uint32, rec []byte) error {
		return fn(feature.NewReader(rec, offset, d.Header, d.Stores))
	})
}

// Feature returns a reader for the record at offset.
func (d *Dataset) Feature(offset uint32) (*feature.Reader, error) {
	rec, err := ReadRecordAt(d.features, offset)
	if err != nil {
		return nil, err
	}
	return feature.NewReader(rec, offset, d.Header, d.Stores), nil
}

// Close releases the record file and every opened store.
func (d *Dataset) Close() error {
	return errors.Join(d.features.Close(), d.Stores.Close())
}
