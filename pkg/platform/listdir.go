package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/httpfileserv/internal/logger"
)

// readDirBatch is how many names are pulled from the OS per ReadDir call.
const readDirBatch = 128

// ListDirectory enumerates path in batches of readDirBatch and calls visit
// once per entry, skipping "." and "..".
//
// Each child is stat'ed through its full path, so a symlink reports the
// kind and size of its target. A child that cannot be stat'ed (a dangling
// symlink, or one removed mid-listing) is logged and skipped; the listing
// goes on. Modification times are truncated to whole seconds, and sizes of
// directories are left at zero.
//
// An error opening or reading the directory itself is returned and
// recorded. Returning false from visit stops the enumeration without error.
func (c *common) ListDirectory(path string, visit Visitor) error {
	dir, err := os.Open(path)
	if err != nil {
		return c.record(fmt.Errorf("open directory %s: %w", path, err))
	}
	defer dir.Close()

	for {
		// ReadDir(n > 0) returns entries in directory order, unsorted.
		batch, err := dir.ReadDir(readDirBatch)
		for _, de := range batch {
			name := de.Name()
			if name == "." || name == ".." {
				continue
			}

			// Follow symlinks, matching stat(2) on the full child path.
			info, statErr := os.Stat(filepath.Join(path, name))
			if statErr != nil {
				c.record(statErr)
				logger.Warn("stat failed for %q: %v", filepath.Join(path, name), statErr)
				continue
			}

			entry := DirEntry{
				Name:    name,
				IsDir:   info.IsDir(),
				ModTime: info.ModTime().Truncate(time.Second),
			}
			if !entry.IsDir && info.Size() > 0 {
				entry.Size = uint64(info.Size())
			}

			if !visit(entry) {
				logger.Debug("Directory listing of %s stopped by visitor", path)
				return nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return c.record(fmt.Errorf("read directory %s: %w", path, err))
		}
	}
}
