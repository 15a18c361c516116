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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chatcart/chatcart/internal/apierror"
	"github.com/chatcart/chatcart/model"
)

const actorCacheTTL = 5 * time.Minute

func actorCacheKey(actorID string) string {
	return fmt.Sprintf("actor:%s", actorID)
}

// GetOrCreateActor loads the actor row, inserting an empty one for a
// first-time actor. The caller holds the actor's distributed lock, so the
// create-then-read pair cannot race with another worker for the same actor.
func (d *Datasource) GetOrCreateActor(ctx context.Context, actorID string) (*model.Actor, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO actors (actor_id) VALUES ($1)
		ON CONFLICT (actor_id) DO NOTHING
	`, actorID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to create actor", err)
	}
	return d.getActorUncached(ctx, actorID)
}

// GetActor fetches an actor row, consulting the cache first.
func (d *Datasource) GetActor(ctx context.Context, actorID string) (*model.Actor, error) {
	if d.Cache != nil {
		var cached model.Actor
		if err := d.Cache.Get(ctx, actorCacheKey(actorID), &cached); err == nil && cached.ActorID != "" {
			return &cached, nil
		}
	}

	actor, err := d.getActorUncached(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if d.Cache != nil {
		if err := d.Cache.Set(ctx, actorCacheKey(actorID), actor, actorCacheTTL); err != nil {
			logError("actor cache set", err)
		}
	}
	return actor, nil
}

func (d *Datasource) getActorUncached(ctx context.Context, actorID string) (*model.Actor, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT actor_id, full_history, relevant_history, created_at, updated_at
		FROM actors WHERE actor_id = $1
	`, actorID)

	actor := model.Actor{}
	var fullRaw, relevantRaw []byte
	err := row.Scan(&actor.ActorID, &fullRaw, &relevantRaw, &actor.CreatedAt, &actor.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("actor %s not found", actorID), err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch actor", err)
	}

	if err := json.Unmarshal(fullRaw, &actor.FullHistory); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "corrupt full history", err)
	}
	if err := json.Unmarshal(relevantRaw, &actor.RelevantHistory); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "corrupt relevant history", err)
	}
	return &actor, nil
}

// UpdateActorHistories persists both history columns. Must be called with the
// actor's lock held.
func (d *Datasource) UpdateActorHistories(ctx context.Context, actorID string, full, relevant []model.Turn) error {
	fullRaw, err := json.Marshal(full)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to marshal full history", err)
	}
	relevantRaw, err := json.Marshal(relevant)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to marshal relevant history", err)
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE actors SET full_history = $2, relevant_history = $3, updated_at = NOW()
		WHERE actor_id = $1
	`, actorID, fullRaw, relevantRaw)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update histories", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("actor %s not found", actorID), nil)
	}
	d.invalidateActorCache(ctx, actorID)
	return nil
}

// ClearRelevantHistory empties only the bounded window, leaving the full
// history untouched. Used on proposal discard.
func (d *Datasource) ClearRelevantHistory(ctx context.Context, actorID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE actors SET relevant_history = '[]', updated_at = NOW()
		WHERE actor_id = $1
	`, actorID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to clear relevant history", err)
	}
	d.invalidateActorCache(ctx, actorID)
	return nil
}

// ClearActorHistories resets both histories to empty. Used on explicit
// conversation reset; the actor row itself is never deleted.
func (d *Datasource) ClearActorHistories(ctx context.Context, actorID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE actors SET full_history = '[]', relevant_history = '[]', updated_at = NOW()
		WHERE actor_id = $1
	`, actorID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to clear histories", err)
	}
	d.invalidateActorCache(ctx, actorID)
	return nil
}

// MarkDirty records an entity in the sync outbox for downstream replication.
func (d *Datasource) MarkDirty(ctx context.Context, entityType, entityID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO sync_outbox (entity_type, entity_id) VALUES ($1, $2)
	`, entityType, entityID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to mark entity dirty", err)
	}
	return nil
}

func (d *Datasource) invalidateActorCache(ctx context.Context, actorID string) {
	if d.Cache == nil {
		return
	}
	if err := d.Cache.Delete(ctx, actorCacheKey(actorID)); err != nil {
		logError("actor cache invalidate", err)
	}
}
