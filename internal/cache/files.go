package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

const checksumPrefix = "xxh64:"

// checksum returns the corruption-detection digest stored in the index
func checksum(data []byte) string {
	return fmt.Sprintf("%s%016x", checksumPrefix, xxhash.Sum64(data))
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it and renames it over path, so readers see the old or the new
// file and never a partial one
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return wrapFSError("create directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return wrapFSError("create temp file in", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return wrapFSError("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return wrapFSError("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return wrapFSError("close", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return wrapFSError("chmod", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return wrapFSError("rename", path, err)
	}
	return nil
}
