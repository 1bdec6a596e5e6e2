package multipart

import "os"

// File is one uploaded part, either held in memory or spilled to a
// temporary file on disk. Disk-backed files own their temp path; Close
// removes it.
type File struct {
	name        string
	contentType string

	data     []byte
	tempPath string
	inMemory bool
}

// NewMemoryFile builds an in-memory file.
func NewMemoryFile(name, contentType string, data []byte) *File {
	return &File{name: name, contentType: contentType, data: data, inMemory: true}
}

// NewTempFile builds a disk-backed file owning tempPath.
func NewTempFile(name, contentType, tempPath string) *File {
	return &File{name: name, contentType: contentType, tempPath: tempPath}
}

// Name returns the display name of the file.
func (f *File) Name() string { return f.name }

// ContentType returns the part's Content-Type header value.
func (f *File) ContentType() string { return f.contentType }

// InMemory reports whether the content lives in memory.
func (f *File) InMemory() bool { return f.inMemory }

// Data returns the in-memory content; nil for disk-backed files.
func (f *File) Data() []byte {
	if !f.inMemory {
		return nil
	}
	return f.data
}

// TempPath returns the backing temp file path; empty for in-memory files.
func (f *File) TempPath() string { return f.tempPath }

// Size returns the content length in bytes regardless of backing.
func (f *File) Size() int64 {
	if f.inMemory {
		return int64(len(f.data))
	}
	if f.tempPath == "" {
		return 0
	}
	info, err := os.Stat(f.tempPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Close releases the backing temp file, if any. Unlink errors are
// returned for the caller to log; the path is cleared either way.
func (f *File) Close() error {
	if f.inMemory || f.tempPath == "" {
		return nil
	}
	path := f.tempPath
	f.tempPath = ""
	return os.Remove(path)
}

// Files maps field names to parsed files. First occurrence of a field
// name wins.
type Files map[string]*File

// Close releases every file's backing storage. The first unlink error is
// returned; all files are still visited.
func (fs Files) Close() error {
	var first error
	for _, f := range fs {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
