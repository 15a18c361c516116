/*
Copyright 2025 Chatcart Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tokens

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "token:"

// ErrNotFound is returned when a token does not resolve: never issued,
// expired, already redeemed, or explicitly deleted.
var ErrNotFound = errors.New("action token not found")

// Store issues and redeems single-use, time-boxed opaque tokens binding a
// workflow action to a pending order id. The TTL is a backstop; explicit
// deletion on redemption or supersession is the primary cleanup path.
type Store struct {
	client redis.UniversalClient
}

func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Issue creates a fresh opaque token bound to the given pending order.
func (s *Store) Issue(ctx context.Context, pendingOrderID int64, ttl time.Duration) (string, error) {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	key := keyPrefix + token
	if err := s.client.Set(ctx, key, strconv.FormatInt(pendingOrderID, 10), ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the pending order id a token is bound to. The caller must
// still verify the pending order row exists; a dangling token (backing order
// deleted by supersession) is treated as not found at that layer.
func (s *Store) Resolve(ctx context.Context, token string) (int64, error) {
	val, err := s.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// Redeem consumes a token exactly once. The atomic get-and-delete guarantees
// that of two concurrent redemption attempts only one succeeds; the loser
// observes ErrNotFound and fails gracefully.
func (s *Store) Redeem(ctx context.Context, token string) (int64, error) {
	val, err := s.client.GetDel(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// Revoke deletes a token outright, used when its pending order is superseded.
func (s *Store) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, keyPrefix+token).Err()
}
