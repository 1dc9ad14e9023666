package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox"
)

// ErrNotFound is returned by Load when no snapshot has been saved.
var ErrNotFound = errors.New("snapshot not found")

const lockRetry = 20 * time.Millisecond

// File stores a snapshot at a path.
type File struct {
	path    string
	lock    *flock.Flock
	metrics *monitoring.Metrics
}

// NewFile creates a store for path. Nothing is touched until Save or Load.
func NewFile(path string, metrics *monitoring.Metrics) *File {
	return &File{
		path:    path,
		lock:    flock.New(path + ".lock"),
		metrics: metrics,
	}
}

// Path returns the snapshot location.
func (f *File) Path() string {
	return f.path
}

// Save replaces the stored snapshot.
func (f *File) Save(ctx context.Context, snap sandbox.Snapshot) (err error) {
	defer func() { f.record("save", err) }()

	data, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	compressed := enc.EncodeAll(data, nil)
	_ = enc.Close()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	unlock, err := f.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	return writeAtomic(f.path, compressed)
}

// Load reads the stored snapshot.
func (f *File) Load(ctx context.Context) (snap sandbox.Snapshot, err error) {
	defer func() {
		if !errors.Is(err, ErrNotFound) {
			f.record("load", err)
		}
	}()

	if _, err := os.Stat(filepath.Dir(f.path)); errors.Is(err, fs.ErrNotExist) {
		return sandbox.Snapshot{}, ErrNotFound
	}
	unlock, err := f.acquire(ctx, false)
	if err != nil {
		return sandbox.Snapshot{}, err
	}
	defer unlock()

	compressed, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return sandbox.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return sandbox.Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return sandbox.Snapshot{}, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return sandbox.Snapshot{}, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return sandbox.Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// acquire takes the exclusive or shared lock, retrying until ctx ends.
func (f *File) acquire(ctx context.Context, exclusive bool) (func(), error) {
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = f.lock.TryLockContext(ctx, lockRetry)
	} else {
		ok, err = f.lock.TryRLockContext(ctx, lockRetry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock snapshot: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to lock snapshot: %s is busy", f.path)
	}
	return func() { _ = f.lock.Unlock() }, nil
}

func (f *File) record(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	f.metrics.RecordSnapshot(op, status)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
