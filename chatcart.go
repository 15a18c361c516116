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
	"embed"
	"fmt"

	"github.com/chatcart/chatcart/config"
	"github.com/chatcart/chatcart/database"
	redis_db "github.com/chatcart/chatcart/internal/redis-db"
	"github.com/chatcart/chatcart/internal/tokens"
	"github.com/redis/go-redis/v9"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Chatcart is the main struct for the conversational ordering service. All
// collaborators are constructor-injected so tests can substitute in-memory
// fakes for the lock, marker and token backends.
type Chatcart struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	tokens     *tokens.Store
	agent      Agent
	sender     MessageSender
}

// NewChatcart initializes a new instance of Chatcart with the provided
// datasource and external collaborators. It fetches the configuration and
// initializes the Redis client, token store and message queue.
func NewChatcart(db database.IDataSource, agent Agent, sender MessageSender) (*Chatcart, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newChatcart := &Chatcart{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		tokens:     tokens.NewStore(redisClient.Client()),
		agent:      agent,
		sender:     sender,
	}
	return newChatcart, nil
}
