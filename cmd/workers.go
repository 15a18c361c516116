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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/chatcart/chatcart"
	"github.com/chatcart/chatcart/config"
	redis_db "github.com/chatcart/chatcart/internal/redis-db"
	"github.com/chatcart/chatcart/model"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

// processInboundMessage consumes one queued message task and runs it through
// the three-phase worker protocol. Lock starvation pushes the task back for
// retry; everything else the protocol absorbs.
func (b *chatcartInstance) processInboundMessage(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("chatcart.messages.worker").Start(ctx, "Process Message From Redis Queue")
	defer span.End()

	var msg model.InboundMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		logrus.Error(err)
		return err
	}

	err := b.chatcart.ProcessInboundMessage(ctx, &msg)
	if err != nil {
		if errors.Is(err, chatcart.ErrLockTimeout) {
			logrus.Infof("Message %s pushed back for retry: actor lock busy", msg.MessageID)
			return err
		}
		logrus.Infof("Message %s pushed back for retry due to error: %v", msg.MessageID, err)
		return err
	}

	log.Println(" [*] Message Processed", msg.MessageID)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[chatcart.WEBHOOK_QUEUE] = 3

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.MessageQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: conf.Queue.WorkerCount,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *chatcartInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	// Register handlers for message queue shards
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.MessageQueue, i)
		mux.HandleFunc(queueName, b.processInboundMessage)
	}

	mux.HandleFunc(chatcart.WEBHOOK_QUEUE, chatcart.ProcessWebhook)
}

// workerCommands defines the "workers" command to start worker processes.
// The workers consume the sharded message queues and the webhook queue.
func workerCommands(b *chatcartInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start chatcart workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
