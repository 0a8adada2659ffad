package server

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/koustreak/tablegate/internal/errs"
	"github.com/koustreak/tablegate/internal/filestore"
)

// memStore keeps objects in memory, keyed by object key within one bucket.
type memStore struct {
	objects map[string][]byte
	pingErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Ping(context.Context) error                 { return s.pingErr }
func (s *memStore) Close() error                               { return nil }
func (s *memStore) EnsureBucket(context.Context, string) error { return nil }

func (s *memStore) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, contentType string) (*filestore.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.objects[key] = data
	return &filestore.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType, LastModified: time.Now()}, nil
}

func (s *memStore) ListObjects(_ context.Context, _ string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	out := make([]filestore.ObjectInfo, 0)
	for k, v := range s.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			out = append(out, filestore.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (s *memStore) StatObject(_ context.Context, _, key string) (*filestore.ObjectInfo, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key")
	}
	return &filestore.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: "application/x-ndjson"}, nil
}

func (s *memStore) PresignGetURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "http://store/" + bucket + "/" + key, nil
}
