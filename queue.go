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
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/chatcart/chatcart/config"
	redis_db "github.com/chatcart/chatcart/internal/redis-db"

	"github.com/chatcart/chatcart/model"
	"github.com/hibiken/asynq"
)

// Queue wraps the Redis-backed task queue used for inbound messages.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// NewInboundMessage stamps an inbound payload with a queue-assigned message
// id and the local receipt timestamp used as the ordering tie-breaker.
func NewInboundMessage(actorID, text string, sourceTimestamp int64) *model.InboundMessage {
	return &model.InboundMessage{
		MessageID:        model.GenerateUUIDWithSuffix("msg"),
		ActorID:          actorID,
		Text:             text,
		SourceTimestamp:  sourceTimestamp,
		ReceiptTimestamp: time.Now().UnixNano(),
	}
}

// Enqueue adds an inbound message to the Redis queue. The returned job id is
// the message id, used as the run identifier for log correlation.
func (q *Queue) Enqueue(ctx context.Context, msg *model.InboundMessage) (string, error) {
	ctx, span := tracer.Start(ctx, "Adding Message To Redis Queue")
	defer span.End()

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	cfg, err := config.Fetch()
	if err != nil {
		return "", err
	}

	info, err := q.Client.EnqueueContext(ctx, q.getTask(cfg, msg, payload), asynq.MaxRetry(cfg.Queue.MaxRetryAttempts))
	if err != nil {
		log.Println(err, info)
		return "", err
	}
	log.Printf(" [*] Successfully enqueued message: %+v", msg.MessageID)

	return msg.MessageID, nil
}

// getTask generates a task for an inbound message and assigns it to a queue
// shard derived from the actor id. All messages for the same actor land in
// the same queue, which keeps per-actor load on one consumer stream; actual
// mutual exclusion is still enforced by the distributed lock, because
// concurrent workers can hold tasks for the same actor at once.
func (q *Queue) getTask(cfg *config.Configuration, msg *model.InboundMessage, payload []byte) *asynq.Task {
	queueIndex := hashActorID(msg.ActorID) % cfg.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cfg.Queue.MessageQueue, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(msg.MessageID), asynq.Queue(queueName)}
	return asynq.NewTask(queueName, payload, taskOptions...)
}

// hashActorID returns a consistent hash value for a string actor ID.
func hashActorID(actorID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(actorID))
	return int(hasher.Sum32())
}

// GetMessageFromQueue retrieves a queued message by its id, searching every
// queue shard.
func (q *Queue) GetMessageFromQueue(messageID string) (*model.InboundMessage, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.MessageQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, messageID)
		if err == nil && task != nil {
			var msg model.InboundMessage
			if err := json.Unmarshal(task.Payload, &msg); err != nil {
				return nil, err
			}
			return &msg, nil
		}
	}
	return nil, nil // Return nil if message is not found in any queue
}

// GetQueuedMessage looks up a still-queued message by id. A nil result means
// the message is no longer queued (processed, or never enqueued).
func (c *Chatcart) GetQueuedMessage(messageID string) (*model.InboundMessage, error) {
	return c.queue.GetMessageFromQueue(messageID)
}

// QueueInboundMessage stamps an inbound payload and enqueues it for worker
// processing. The returned message carries the assigned message id and
// receipt timestamp.
func (c *Chatcart) QueueInboundMessage(ctx context.Context, actorID, text string, sourceTimestamp int64) (*model.InboundMessage, error) {
	msg := NewInboundMessage(actorID, text, sourceTimestamp)
	if _, err := c.queue.Enqueue(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
