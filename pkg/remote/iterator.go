package remote

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"gocloud.dev/blob"
)

// Entry describes one listed object or directory.
type Entry struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Iterator walks the entries under a directory.
//
// Each call to Next advances exactly once and returns that entry; callers
// inspect the returned value (for example Entry.IsDir) without advancing
// again.
type Iterator struct {
	it  *blob.ListIterator
	dir string
}

// Next returns the next entry, or io.EOF when the listing is exhausted.
func (it *Iterator) Next(ctx context.Context) (*Entry, error) {
	for {
		obj, err := it.it.Next(ctx)
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, translate("list", it.dir, err)
		}

		// Directory markers are not entries; in a flat listing the
		// directories they belong to show up as common prefixes.
		if !obj.IsDir && path.Base(obj.Key) == dirMarker {
			continue
		}

		return entryFromObject(obj), nil
	}
}

func entryFromObject(obj *blob.ListObject) *Entry {
	key := strings.TrimSuffix(obj.Key, "/")
	return &Entry{
		Path:    "/" + key,
		Name:    path.Base(key),
		Size:    obj.Size,
		ModTime: obj.ModTime,
		IsDir:   obj.IsDir,
	}
}
