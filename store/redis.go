package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "mbr"

// RedisStore keeps account and role documents as JSON values in Redis, with
// secondary index keys for username and email and a per-application id set.
//
// Multi-key writes run inside WATCH/MULTI transactions and retry on contention.
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	closers []func() error
}

// NewRedisStore wraps an existing client. The caller keeps ownership of the client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

// appSegment length-prefixes app so that application names containing the
// separator cannot alias another application's keys.
func appSegment(app string) string {
	return strconv.Itoa(len(app)) + ":" + app
}

func (s *RedisStore) accountKey(id string) string {
	return s.prefix + ":acct:id:" + id
}

func (s *RedisStore) usernameKey(app, loweredUsername string) string {
	return s.prefix + ":acct:name:" + appSegment(app) + ":" + loweredUsername
}

func (s *RedisStore) emailKey(app, loweredEmail string) string {
	return s.prefix + ":acct:email:" + appSegment(app) + ":" + loweredEmail
}

func (s *RedisStore) accountSetKey(app string) string {
	return s.prefix + ":acct:all:" + appSegment(app)
}

func (s *RedisStore) roleKey(id string) string {
	return s.prefix + ":role:id:" + id
}

func (s *RedisStore) roleSetKey(app string) string {
	return s.prefix + ":role:all:" + appSegment(app)
}

func (s *RedisStore) InsertAccount(ctx context.Context, acct *Account) error {
	if acct == nil || acct.ID == "" {
		return errors.New("account id required")
	}

	nameKey := s.usernameKey(acct.ApplicationName, acct.LoweredUsername)
	watched := []string{nameKey}
	var emailKey string
	if acct.LoweredEmail != "" {
		emailKey = s.emailKey(acct.ApplicationName, acct.LoweredEmail)
		watched = append(watched, emailKey)
	}

	doc := acct.Clone()
	doc.Version = 1
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	for i := 0; i < maxRetries; i++ {
		var domainErr error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			// Email is checked first so a double collision reports the email.
			if emailKey != "" {
				n, err := tx.Exists(ctx, emailKey).Result()
				if err != nil {
					return err
				}
				if n > 0 {
					domainErr = ErrDuplicateEmail
					return domainErr
				}
			}
			n, err := tx.Exists(ctx, nameKey).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				domainErr = ErrDuplicateUsername
				return domainErr
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.accountKey(doc.ID), encoded, 0)
				pipe.Set(ctx, nameKey, doc.ID, 0)
				if emailKey != "" {
					pipe.Set(ctx, emailKey, doc.ID, 0)
				}
				pipe.SAdd(ctx, s.accountSetKey(doc.ApplicationName), doc.ID)
				return nil
			})
			return err
		}, watched...)

		if err == redis.TxFailedErr {
			continue
		}
		if domainErr != nil {
			return domainErr
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		acct.Version = doc.Version
		return nil
	}

	return ErrConflict
}

func (s *RedisStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	data, err := s.redis.Get(ctx, s.accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeAccount(data)
}

func (s *RedisStore) FindAccountByUsername(ctx context.Context, app, loweredUsername string) (*Account, error) {
	return s.findByIndex(ctx, app, s.usernameKey(app, loweredUsername))
}

func (s *RedisStore) FindAccountByEmail(ctx context.Context, app, loweredEmail string) (*Account, error) {
	if loweredEmail == "" {
		return nil, ErrNotFound
	}
	return s.findByIndex(ctx, app, s.emailKey(app, loweredEmail))
}

// findByIndex follows an index key to its document. A document owned by another
// application is reported as missing.
func (s *RedisStore) findByIndex(ctx context.Context, app, indexKey string) (*Account, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.ApplicationName != app {
		return nil, ErrNotFound
	}
	return acct, nil
}

func (s *RedisStore) ListAccounts(ctx context.Context, app string, match func(*Account) bool) ([]*Account, error) {
	ids, err := s.redis.SMembers(ctx, s.accountSetKey(app)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Account, 0, len(ids))
	err = s.loadDocuments(ctx, ids, s.accountKey, func(data []byte) error {
		acct, err := decodeAccount(data)
		if err != nil {
			return err
		}
		if match == nil || match(acct) {
			out = append(out, acct)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortAccounts(out)
	return out, nil
}

func (s *RedisStore) UpdateAccount(ctx context.Context, id string, mutate func(*Account) error) (*Account, error) {
	key := s.accountKey(id)

	for i := 0; i < maxRetries; i++ {
		var (
			result    *Account
			domainErr error
		)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					domainErr = ErrNotFound
				}
				return err
			}

			current, err := decodeAccount(data)
			if err != nil {
				return err
			}

			next := current.Clone()
			if err := mutate(next); err != nil {
				if errors.Is(err, ErrSkipUpdate) {
					result = current
					return nil
				}
				domainErr = err
				return err
			}
			if err := checkImmutable(current, next); err != nil {
				domainErr = err
				return err
			}

			emailChanged := next.LoweredEmail != current.LoweredEmail
			var newEmailKey string
			if emailChanged && next.LoweredEmail != "" {
				newEmailKey = s.emailKey(next.ApplicationName, next.LoweredEmail)
				if err := tx.Watch(ctx, newEmailKey).Err(); err != nil {
					return err
				}
				owner, err := tx.Get(ctx, newEmailKey).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
				if err == nil && owner != id {
					domainErr = ErrDuplicateEmail
					return domainErr
				}
			}

			next.Version = current.Version + 1
			encoded, err := json.Marshal(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				if emailChanged {
					if current.LoweredEmail != "" {
						pipe.Del(ctx, s.emailKey(current.ApplicationName, current.LoweredEmail))
					}
					if newEmailKey != "" {
						pipe.Set(ctx, newEmailKey, id, 0)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			result = next
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if domainErr != nil {
			return nil, domainErr
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		return result, nil
	}

	return nil, ErrConflict
}

func (s *RedisStore) DeleteAccount(ctx context.Context, id string) error {
	key := s.accountKey(id)

	for i := 0; i < maxRetries; i++ {
		var notFound bool

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					notFound = true
				}
				return err
			}
			current, err := decodeAccount(data)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Del(ctx, s.usernameKey(current.ApplicationName, current.LoweredUsername))
				if current.LoweredEmail != "" {
					pipe.Del(ctx, s.emailKey(current.ApplicationName, current.LoweredEmail))
				}
				pipe.SRem(ctx, s.accountSetKey(current.ApplicationName), id)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if notFound {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	return ErrConflict
}

func (s *RedisStore) InsertRole(ctx context.Context, role *Role) error {
	if role == nil || role.ID == "" {
		return errors.New("role id required")
	}
	encoded, err := json.Marshal(role)
	if err != nil {
		return err
	}

	key := s.roleKey(role.ID)
	for i := 0; i < maxRetries; i++ {
		var exists bool

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				exists = true
				return ErrDuplicateRole
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				pipe.SAdd(ctx, s.roleSetKey(role.ApplicationName), role.ID)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if exists {
			return ErrDuplicateRole
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	return ErrConflict
}

func (s *RedisStore) GetRole(ctx context.Context, id string) (*Role, error) {
	data, err := s.redis.Get(ctx, s.roleKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeRole(data)
}

func (s *RedisStore) ListRoles(ctx context.Context, app string) ([]*Role, error) {
	ids, err := s.redis.SMembers(ctx, s.roleSetKey(app)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Role, 0, len(ids))
	err = s.loadDocuments(ctx, ids, s.roleKey, func(data []byte) error {
		role, err := decodeRole(data)
		if err != nil {
			return err
		}
		out = append(out, role)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LoweredName < out[j].LoweredName })
	return out, nil
}

func (s *RedisStore) DeleteRole(ctx context.Context, id string) error {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.roleKey(id))
		pipe.SRem(ctx, s.roleSetKey(role.ApplicationName), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases resources the store opened itself. Injected clients stay open.
func (s *RedisStore) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// loadDocuments fetches documents in MGET batches. Ids whose document vanished
// between the set read and the fetch are skipped.
func (s *RedisStore) loadDocuments(ctx context.Context, ids []string, keyFn func(string) string, fn func([]byte) error) error {
	const batch = 256

	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}

		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, keyFn(id))
		}

		values, err := s.redis.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, v := range values {
			str, ok := v.(string)
			if !ok {
				continue
			}
			if err := fn([]byte(str)); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeAccount(data []byte) (*Account, error) {
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &acct, nil
}

func decodeRole(data []byte) (*Role, error) {
	var role Role
	if err := json.Unmarshal(data, &role); err != nil {
		return nil, fmt.Errorf("decode role: %w", err)
	}
	return &role, nil
}

func sortAccounts(accounts []*Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].LoweredUsername < accounts[j].LoweredUsername
	})
}
