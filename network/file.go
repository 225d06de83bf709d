package network

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/fileutil"
)

// File is a random access payload. Every attempt reads it from offset 0,
// so one File can back any number of attempts.
type File interface {
	io.ReaderAt
	Name() string
	Size() int64
}

// LocalFile is a File backed by a file on disk.
type LocalFile struct {
	file *os.File
	name string
	size int64
}

// OpenLocalFile opens the file at path for uploading. The caller owns the returned file and must Close it.
func OpenLocalFile(fileManager fileutil.FileManager, path string) (*LocalFile, error) {
	if fileManager == nil {
		fileManager = fileutil.NewFileManager()
	}

	f, err := fileManager.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &LocalFile{
		file: f,
		name: filepath.Base(path),
		size: info.Size(),
	}, nil
}

// ReadAt ...
func (f *LocalFile) ReadAt(p []byte, off int64) (int, error) {
	return f.file.ReadAt(p, off)
}

// Name returns the base name of the file.
func (f *LocalFile) Name() string {
	return f.name
}

// Size ...
func (f *LocalFile) Size() int64 {
	return f.size
}

// Close ...
func (f *LocalFile) Close() error {
	return f.file.Close()
}

// BytesFile is an in-memory File.
type BytesFile struct {
	name   string
	reader *bytes.Reader
}

// NewBytesFile ...
func NewBytesFile(name string, data []byte) *BytesFile {
	return &BytesFile{name: name, reader: bytes.NewReader(data)}
}

// ReadAt ...
func (f *BytesFile) ReadAt(p []byte, off int64) (int, error) {
	return f.reader.ReadAt(p, off)
}

// Name ...
func (f *BytesFile) Name() string {
	return f.name
}

// Size ...
func (f *BytesFile) Size() int64 {
	return f.reader.Size()
}
