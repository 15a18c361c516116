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

package chatcart

import (
	"context"

	"github.com/chatcart/chatcart/config"
	"github.com/chatcart/chatcart/model"
)

const entityTypeActor = "actor"

// historyAppend is one turn headed for the actor's histories. The full text
// always goes to the full history; the relevant window receives either the
// full text or, when set, the short sanitized marker. A turn with relevant
// set to false is appended to the full history only.
type historyAppend struct {
	turn     model.Turn
	relevant bool
	marker   string
}

// appendHistory merges new turns into the actor's durable histories: load
// current state (creating the actor on first contact), append, stable-sort by
// timestamp to defend against out-of-order arrival, truncate the relevant
// window, persist, and mark the record for downstream sync.
//
// Callers must hold the actor's distributed lock. Every call re-reads state
// from the store rather than reusing an earlier in-memory copy, because
// concurrent jobs for the same actor may have written between two locked
// phases of one job.
func (c *Chatcart) appendHistory(ctx context.Context, actorID string, entries []historyAppend) (full, relevant []model.Turn, err error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, nil, err
	}

	actor, err := c.datasource.GetOrCreateActor(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}

	full = actor.FullHistory
	relevant = actor.RelevantHistory
	for _, entry := range entries {
		full = append(full, entry.turn)
		if !entry.relevant {
			continue
		}
		relevantTurn := entry.turn
		if entry.marker != "" {
			relevantTurn.Content = entry.marker
		}
		relevant = append(relevant, relevantTurn)
	}

	model.SortTurnsByTime(full)
	model.SortTurnsByTime(relevant)
	relevant = model.TruncateRelevant(relevant, cfg.History.RelevantWindow)

	if err := c.datasource.UpdateActorHistories(ctx, actorID, full, relevant); err != nil {
		return nil, nil, err
	}
	if err := c.datasource.MarkDirty(ctx, entityTypeActor, actorID); err != nil {
		return nil, nil, err
	}
	return full, relevant, nil
}

// GetActorHistory returns the stored actor with both history views. An actor
// that has never messaged yields a not-found error.
func (c *Chatcart) GetActorHistory(ctx context.Context, actorID string) (*model.Actor, error) {
	return c.datasource.GetActor(ctx, actorID)
}

// resetHistory clears both histories. Used for explicit conversation resets;
// the actor row survives. Callers must hold the actor's distributed lock.
func (c *Chatcart) resetHistory(ctx context.Context, actorID string) error {
	if err := c.datasource.ClearActorHistories(ctx, actorID); err != nil {
		return err
	}
	return c.datasource.MarkDirty(ctx, entityTypeActor, actorID)
}
