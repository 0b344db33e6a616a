package metacache

import (
	"context"
	"slices"

	"github.com/pithecene-io/uadp/message"
)

// Entry is one mirrored frame found by Scan.
type Entry struct {
	Name string
	Key  Key
	// Frame is nil when Err is set.
	Frame *message.MetaFrame
	Err   error
}

// Scan reads every mirrored frame in store without changing it. Blobs that
// cannot be read or decoded are returned with Err set. Entries are ordered
// by publisher, writer and version.
func Scan(ctx context.Context, store Store, opts message.Options) ([]Entry, error) {
	names, err := store.List(ctx, FileExt)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		e := Entry{Name: name}
		if e.Key, e.Err = ParseFileName(name); e.Err != nil {
			entries = append(entries, e)
			continue
		}
		data, err := store.Get(ctx, name)
		if err != nil {
			e.Err = err
			entries = append(entries, e)
			continue
		}
		e.Frame, e.Err = decodeMirror(data, opts)
		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return compareKeys(a.Key, b.Key)
	})
	return entries, nil
}
