package metacache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pithecene-io/uadp/message"
)

// FileExt is the extension of persisted meta frames.
const FileExt = ".meta"

// Key identifies one cached meta frame.
type Key struct {
	PublisherID string
	WriterID    uint16
	Version     message.ConfigurationVersion
}

// KeyOf derives the cache key of a meta frame.
func KeyOf(m *message.MetaFrame) Key {
	return Key{PublisherID: m.PublisherID(), WriterID: m.WriterID, Version: m.ConfigurationVersion}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d@%s", k.PublisherID, k.WriterID, k.Version)
}

// FileName returns "<publisher>-<writer>-<major>-<minor>.meta".
func (k Key) FileName() string {
	return fmt.Sprintf("%s-%d-%d-%d%s", k.PublisherID, k.WriterID, k.Version.Major, k.Version.Minor, FileExt)
}

// ParseFileName is the inverse of Key.FileName. Publisher IDs may contain
// dashes, so the numeric parts are taken from the right.
func ParseFileName(name string) (Key, error) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	base, ok := strings.CutSuffix(name, FileExt)
	if !ok {
		return Key{}, fmt.Errorf("meta file %q: missing %s extension", name, FileExt)
	}
	parts := strings.Split(base, "-")
	if len(parts) < 4 {
		return Key{}, fmt.Errorf("meta file %q: expected publisher-writer-major-minor", name)
	}
	n := len(parts)
	writer, err := strconv.ParseUint(parts[n-3], 10, 16)
	if err != nil {
		return Key{}, fmt.Errorf("meta file %q: writer id: %w", name, err)
	}
	major, err := strconv.ParseUint(parts[n-2], 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("meta file %q: major version: %w", name, err)
	}
	minor, err := strconv.ParseUint(parts[n-1], 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("meta file %q: minor version: %w", name, err)
	}
	return Key{
		PublisherID: strings.Join(parts[:n-3], "-"),
		WriterID:    uint16(writer),
		Version:     message.ConfigurationVersion{Major: uint32(major), Minor: uint32(minor)},
	}, nil
}

type writerKey struct {
	publisherID string
	writerID    uint16
}
