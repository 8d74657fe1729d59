package blob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldData        = "data"
	fieldContentType = "content_type"
	fieldSize        = "size"
	fieldPublic      = "public"
	fieldUploadedAt  = "uploaded_at"
)

// RedisStore keeps each blob in a hash under "<namespace>:<key>"
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	urls      URLs
}

// NewRedisStore creates a store on an existing client
func NewRedisStore(client redis.UniversalClient, namespace string, urls URLs) *RedisStore {
	if namespace == "" {
		namespace = "blob"
	}
	return &RedisStore{client: client, namespace: namespace, urls: urls}
}

func (s *RedisStore) redisKey(key string) string {
	return s.namespace + ":" + key
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// List scans for keys under prefix
func (s *RedisStore) List(ctx context.Context, prefix string) ([]Object, error) {
	pattern := s.redisKey(escapeGlob(prefix)) + "*"

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan blobs: %w", err)
	}
	sort.Strings(keys)

	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HMGet(ctx, k, fieldContentType, fieldSize, fieldPublic, fieldUploadedAt)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read blob metadata: %w", err)
	}

	out := make([]Object, 0, len(keys))
	for i, k := range keys {
		vals := cmds[i].Val()
		if len(vals) != 4 || vals[1] == nil {
			// deleted between SCAN and HMGET
			continue
		}
		key := strings.TrimPrefix(k, s.namespace+":")
		out = append(out, s.object(key, asString(vals[0]), asString(vals[1]), asString(vals[2]), asString(vals[3])))
	}
	return out, nil
}

// Get reads the blob hash
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, Object, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, Object{}, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	data, ok := fields[fieldData]
	if !ok {
		return nil, Object{}, ErrNotFound
	}
	obj := s.object(key, fields[fieldContentType], fields[fieldSize], fields[fieldPublic], fields[fieldUploadedAt])
	return []byte(data), obj, nil
}

// Put writes the blob hash. Without Overwrite the data field is claimed with
// HSETNX first so concurrent creators cannot both succeed.
func (s *RedisStore) Put(ctx context.Context, key string, content []byte, opts PutOptions) (Object, error) {
	if err := ValidateKey(key); err != nil {
		return Object{}, err
	}

	rk := s.redisKey(key)
	now := time.Now().UTC()
	meta := map[string]any{
		fieldContentType: opts.ContentType,
		fieldSize:        len(content),
		fieldPublic:      strconv.FormatBool(opts.Public),
		fieldUploadedAt:  now.UnixNano(),
	}

	if !opts.Overwrite {
		created, err := s.client.HSetNX(ctx, rk, fieldData, content).Result()
		if err != nil {
			return Object{}, fmt.Errorf("failed to create blob %s: %w", key, err)
		}
		if !created {
			return Object{}, ErrExists
		}
		if err := s.client.HSet(ctx, rk, meta).Err(); err != nil {
			return Object{}, fmt.Errorf("failed to write blob metadata %s: %w", key, err)
		}
	} else {
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, rk)
			meta[fieldData] = content
			p.HSet(ctx, rk, meta)
			return nil
		})
		if err != nil {
			return Object{}, fmt.Errorf("failed to write blob %s: %w", key, err)
		}
	}

	return Object{
		Key:         key,
		URL:         s.urls.For(key),
		Size:        int64(len(content)),
		ContentType: opts.ContentType,
		Public:      opts.Public,
		UploadedAt:  now,
	}, nil
}

// Delete removes the blob hash
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) object(key, contentType, size, public, uploadedAt string) Object {
	obj := Object{Key: key, URL: s.urls.For(key), ContentType: contentType}
	obj.Size, _ = strconv.ParseInt(size, 10, 64)
	obj.Public, _ = strconv.ParseBool(public)
	if ns, err := strconv.ParseInt(uploadedAt, 10, 64); err == nil {
		obj.UploadedAt = time.Unix(0, ns).UTC()
	}
	return obj
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// escapeGlob escapes redis MATCH metacharacters
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
