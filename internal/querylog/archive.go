package querylog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/koustreak/xdb/internal/errs"
	"github.com/koustreak/xdb/internal/filestore"
)

const archiveContentType = "application/x-ndjson"

// ArchiveKey names an archive object by the time of its first entry.
func ArchiveKey(prefix string, entries []Entry) string {
	if len(entries) == 0 {
		return prefix + "empty.ndjson"
	}
	return prefix + entries[0].At.UTC().Format("20060102T150405.000000000Z") + ".ndjson"
}

// Archive writes entries as JSON lines to bucket/key.
func Archive(ctx context.Context, w filestore.Writer, bucket, key string, entries []Entry) (*filestore.ObjectInfo, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("encode entry %s", e.ID), err)
		}
	}
	return w.PutObject(ctx, bucket, key, &buf, int64(buf.Len()), archiveContentType)
}

// Restore reads an archive written by Archive.
func Restore(ctx context.Context, r filestore.Reader, bucket, key string) ([]Entry, error) {
	obj, err := r.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	var entries []Entry
	sc := bufio.NewScanner(obj)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("decode %s/%s", bucket, key), err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("read %s/%s", bucket, key), err)
	}
	return entries, nil
}
