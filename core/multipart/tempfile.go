package multipart

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// TempFilePrefix names temp files holding spilled multipart parts.
const TempFilePrefix = "cxxapi_tmp"

// UploadFilePrefix names temp files holding streamed request bodies.
const UploadFilePrefix = "upload"

// TempPath builds a unique-looking path "<dir>/<prefix>-xxxx-xxxx" with
// random hex groups. Collisions are handled by CreateTemp's exclusive
// open.
func TempPath(dir, prefix string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%04x-%04x", prefix, rand.Intn(0x10000), rand.Intn(0x10000)))
}

// CreateTemp opens a fresh exclusive temp file under dir with the given
// name prefix, retrying on the unlikely name collision.
func CreateTemp(dir, prefix string) (*os.File, error) {
	for i := 0; i < 16; i++ {
		f, err := os.OpenFile(TempPath(dir, prefix), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("temp name space exhausted under %s", dir)
}
