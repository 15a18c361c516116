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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/chatcart/chatcart/internal/apierror"
	"github.com/chatcart/chatcart/model"
	"github.com/stretchr/testify/assert"
)

func actorRows(t *testing.T, actorID string, full, relevant []model.Turn) *sqlmock.Rows {
	t.Helper()
	fullRaw, err := json.Marshal(full)
	assert.NoError(t, err)
	relevantRaw, err := json.Marshal(relevant)
	assert.NoError(t, err)

	return sqlmock.NewRows([]string{"actor_id", "full_history", "relevant_history", "created_at", "updated_at"}).
		AddRow(actorID, fullRaw, relevantRaw, time.Now(), time.Now())
}

func TestGetOrCreateActor_NewActor(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO actors").
		WithArgs("actor-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery("SELECT actor_id, full_history, relevant_history, created_at, updated_at FROM actors WHERE actor_id = ?").
		WithArgs("actor-1").
		WillReturnRows(actorRows(t, "actor-1", []model.Turn{}, []model.Turn{}))

	actor, err := ds.GetOrCreateActor(context.Background(), "actor-1")
	assert.NoError(t, err)
	assert.Equal(t, "actor-1", actor.ActorID)
	assert.Empty(t, actor.FullHistory)
	assert.Empty(t, actor.RelevantHistory)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateActor_ExistingActorKeepsHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	turns := []model.Turn{
		{Role: model.RoleUser, Content: "hello", Timestamp: time.Unix(1000, 0)},
		{Role: model.RoleAssistant, Content: "hi there", Timestamp: time.Unix(1001, 0)},
	}

	// The conflict-free insert is a no-op for an existing row.
	mock.ExpectExec("INSERT INTO actors").
		WithArgs("actor-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery("SELECT actor_id, full_history, relevant_history, created_at, updated_at FROM actors WHERE actor_id = ?").
		WithArgs("actor-1").
		WillReturnRows(actorRows(t, "actor-1", turns, turns[1:]))

	actor, err := ds.GetOrCreateActor(context.Background(), "actor-1")
	assert.NoError(t, err)
	assert.Len(t, actor.FullHistory, 2)
	assert.Len(t, actor.RelevantHistory, 1)
	assert.Equal(t, "hello", actor.FullHistory[0].Content)
}

func TestGetOrCreateActor_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO actors").
		WithArgs("actor-1").
		WillReturnError(sql.ErrConnDone)

	_, err = ds.GetOrCreateActor(context.Background(), "actor-1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}

func TestGetActor_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT actor_id, full_history, relevant_history, created_at, updated_at FROM actors WHERE actor_id = ?").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetActor(context.Background(), "ghost")
	assert.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestGetActor_CorruptHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := sqlmock.NewRows([]string{"actor_id", "full_history", "relevant_history", "created_at", "updated_at"}).
		AddRow("actor-1", []byte("{not json"), []byte("[]"), time.Now(), time.Now())

	mock.ExpectQuery("SELECT actor_id, full_history, relevant_history, created_at, updated_at FROM actors WHERE actor_id = ?").
		WithArgs("actor-1").
		WillReturnRows(rows)

	_, err = ds.GetActor(context.Background(), "actor-1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}

func TestUpdateActorHistories_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	full := []model.Turn{{Role: model.RoleUser, Content: "hello", Timestamp: time.Unix(1000, 0)}}
	relevant := full
	fullRaw, err := json.Marshal(full)
	assert.NoError(t, err)
	relevantRaw, err := json.Marshal(relevant)
	assert.NoError(t, err)

	mock.ExpectExec("UPDATE actors SET full_history").
		WithArgs("actor-1", fullRaw, relevantRaw).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateActorHistories(context.Background(), "actor-1", full, relevant)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateActorHistories_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE actors SET full_history").
		WithArgs("ghost", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateActorHistories(context.Background(), "ghost", nil, nil)
	assert.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestClearRelevantHistory_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE actors SET relevant_history").
		WithArgs("actor-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.ClearRelevantHistory(context.Background(), "actor-1")
	assert.NoError(t, err)
}

func TestClearActorHistories_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE actors SET full_history = '\\[\\]', relevant_history = '\\[\\]'").
		WithArgs("actor-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.ClearActorHistories(context.Background(), "actor-1")
	assert.NoError(t, err)
}

func TestMarkDirty_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO sync_outbox").
		WithArgs("actor", "actor-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.MarkDirty(context.Background(), "actor", "actor-1")
	assert.NoError(t, err)
}

func TestMarkDirty_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO sync_outbox").
		WithArgs("actor", "actor-1").
		WillReturnError(sql.ErrConnDone)

	err = ds.MarkDirty(context.Background(), "actor", "actor-1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}
