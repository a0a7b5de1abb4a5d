package collector

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	recordsDir = "records"
	recordExt  = ".json"
	tempPrefix = ".tmp-"
)

// recordPath maps a key to records/<toolchain>/<benchmark>.json. Both names
// are path-escaped so any benchmark name maps to a single file.
func (c *Collector) recordPath(k Key) (string, error) {
	tc, err := escapeName(k.Toolchain.String())
	if err != nil {
		return "", err
	}
	b, err := escapeName(k.Benchmark)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.dir, recordsDir, tc, b+recordExt), nil
}

// escapeName never returns a name starting with "." so a record file cannot
// be mistaken for a temp file.
func escapeName(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid store name %q", name)
	}
	escaped := url.PathEscape(name)
	if strings.HasPrefix(escaped, ".") {
		escaped = "%2E" + escaped[1:]
	}
	return escaped, nil
}

// load reads every record under records/ into the index. Temp files left by
// an interrupted write are removed; anything else that does not parse is a
// CorruptError.
func (c *Collector) load() error {
	root := filepath.Join(c.dir, recordsDir)
	tcs, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read records directory: %w", err)
	}

	for _, tcEntry := range tcs {
		tcPath := filepath.Join(root, tcEntry.Name())
		if !tcEntry.IsDir() {
			if c.dropTemp(tcPath) {
				continue
			}
			return &CorruptError{Path: tcPath, Err: errors.New("unexpected file in records directory")}
		}
		tcName, err := url.PathUnescape(tcEntry.Name())
		if err != nil {
			return &CorruptError{Path: tcPath, Err: err}
		}

		files, err := os.ReadDir(tcPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", tcPath, err)
		}
		for _, f := range files {
			path := filepath.Join(tcPath, f.Name())
			if !f.IsDir() && c.dropTemp(path) {
				continue
			}
			if f.IsDir() || !strings.HasSuffix(f.Name(), recordExt) {
				return &CorruptError{Path: path, Err: errors.New("unexpected entry in records directory")}
			}
			benchName, err := url.PathUnescape(strings.TrimSuffix(f.Name(), recordExt))
			if err != nil {
				return &CorruptError{Path: path, Err: err}
			}
			if err := c.loadRecord(path, tcName, benchName); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Collector) loadRecord(path, tcName, benchName string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read record: %w", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return &CorruptError{Path: path, Err: err}
	}
	if rec.Toolchain.String() != tcName || rec.Benchmark != benchName {
		return &CorruptError{
			Path: path,
			Err:  fmt.Errorf("record for %s stored under %s/%s", rec.Key(), tcName, benchName),
		}
	}
	c.index[rec.Key()] = rec
	return nil
}

// dropTemp removes path if it is a leftover temp file and reports whether it
// was one. A read-only collector leaves the file in place.
func (c *Collector) dropTemp(path string) bool {
	if !strings.HasPrefix(filepath.Base(path), tempPrefix) {
		return false
	}
	if c.opts.ReadOnly {
		return true
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("could not remove stale temp file", "path", path, "error", err)
	} else {
		c.logger.Debug("removed stale temp file", "path", path)
	}
	return true
}

// writeRecord persists rec atomically: the bytes reach disk in a temp file
// before it is renamed over the record, and the directory is synced so the
// rename itself survives a crash.
func (c *Collector) writeRecord(rec *Record) error {
	path, err := c.recordPath(rec.Key())
	if err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	_, statErr := os.Stat(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		if err := syncDir(filepath.Dir(dir)); err != nil {
			return err
		}
	}
	return atomicWrite(path, data)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	success = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}
