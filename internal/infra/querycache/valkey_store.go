package querycache

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyStore keeps cache entries in a Valkey-compatible database so workers
// on several hosts can share one cache. Entries carry a server-side retention
// so an abandoned cache does not grow without bound; freshness within the
// retention is still decided per call by the cache layer.
type ValkeyStore struct {
	client    valkey.Client
	prefix    string
	retention time.Duration
}

func NewValkeyStore(client valkey.Client, prefix string, retention time.Duration) *ValkeyStore {
	if prefix == "" {
		prefix = "sitefinder:cache"
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &ValkeyStore{client: client, prefix: prefix, retention: retention}
}

func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.entryKey(key)).Build())
	payload, err := resp.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *ValkeyStore) Set(ctx context.Context, key string, payload []byte) error {
	cmd := s.client.B().Set().Key(s.entryKey(key)).Value(string(payload)).Ex(s.retention).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.entryKey(key)).Build()).Error()
}

func (s *ValkeyStore) Clear(ctx context.Context) (int, error) {
	removed := 0
	var cursor uint64
	for {
		resp := s.client.Do(ctx, s.client.B().Scan().Cursor(cursor).Match(s.prefix+":*").Count(200).Build())
		entry, err := resp.AsScanEntry()
		if err != nil {
			return removed, err
		}
		if len(entry.Elements) > 0 {
			if err := s.client.Do(ctx, s.client.B().Del().Key(entry.Elements...).Build()).Error(); err != nil {
				return removed, err
			}
			removed += len(entry.Elements)
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *ValkeyStore) entryKey(key string) string {
	return s.prefix + ":" + key
}

var _ Store = (*ValkeyStore)(nil)
