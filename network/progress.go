package network

import (
	"io"
	"sync/atomic"
)

// progressReader reports the read position within the payload after every read.
// Seeking back moves the reported position back as well.
type progressReader struct {
	reader     *io.SectionReader
	total      int64
	sent       int64
	onProgress ProgressFunc
}

func newProgressReader(file File, onProgress ProgressFunc) *progressReader {
	return &progressReader{
		reader:     io.NewSectionReader(file, 0, file.Size()),
		total:      file.Size(),
		onProgress: onProgress,
	}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.report(int64(n))
	}
	return n, err
}

// Seek lets signing and checksum code rewind the payload.
func (r *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.reader.Seek(offset, whence)
	if err == nil {
		r.sent = pos
	}
	return pos, err
}

func (r *progressReader) report(n int64) {
	r.sent += n
	if r.onProgress != nil {
		r.onProgress(r.sent, r.total)
	}
}

// progressHook counts the bytes handed to it without reading anything itself.
// Object store clients that accept a progress io.Reader call Read with the
// chunk they just uploaded.
type progressHook struct {
	total      int64
	sent       int64
	onProgress ProgressFunc
}

func (h *progressHook) Read(p []byte) (int, error) {
	sent := atomic.AddInt64(&h.sent, int64(len(p)))
	if sent > h.total {
		sent = h.total
	}
	if h.onProgress != nil {
		h.onProgress(sent, h.total)
	}
	return len(p), nil
}
