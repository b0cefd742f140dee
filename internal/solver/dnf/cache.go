package dnf

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// metadataCache tracks the size of a DNF metadata cache directory and
// wipes it when it grows past maxSize. DNF's own expiry only refreshes
// metadata, it never bounds the total size across releasevers.
type metadataCache struct {
	root    string
	maxSize uint64
}

func newMetadataCache(path string, maxSize uint64) *metadataCache {
	return &metadataCache{
		root:    path,
		maxSize: maxSize,
	}
}

func (c *metadataCache) size() (uint64, error) {
	var size uint64
	sizer := func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		size += uint64(info.Size())
		return nil
	}
	err := filepath.Walk(c.root, sizer)
	return size, err
}

// clean removes the whole cache when it exceeds the maximum size. A
// missing cache directory is not an error.
func (c *metadataCache) clean() error {
	curSize, err := c.size()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if curSize > c.maxSize {
		logrus.Infof("metadata cache %s is %d bytes, above the %d byte limit, removing", c.root, curSize, c.maxSize)
		return os.RemoveAll(c.root)
	}
	return nil
}
