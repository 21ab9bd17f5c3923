package transport

import (
	"io"
)

const defaultContentType = "video/mp4"

// File is an in-process handle to the media being benchmarked. Content is an
// io.ReaderAt so the chunked transfer can re-read arbitrary ranges without
// buffering the whole file.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.ReaderAt
}

func (f File) reader() io.Reader {
	return io.NewSectionReader(f.Content, 0, f.Size)
}

func (f File) contentType() string {
	if f.ContentType == "" {
		return defaultContentType
	}

	return f.ContentType
}
