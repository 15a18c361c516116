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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	// DEFAULT_RELEVANT_WINDOW is the bounded number of recent turns kept as
	// conversational context for agent processing.
	DEFAULT_RELEVANT_WINDOW = 24
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"CHATCART_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"CHATCART_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CHATCART_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"CHATCART_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"CHATCART_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"CHATCART_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CHATCART_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"CHATCART_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"CHATCART_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	MessageQueue     string `json:"message_queue" envconfig:"CHATCART_QUEUE_MESSAGE_QUEUE"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"CHATCART_QUEUE_NUMBER_OF_QUEUES"`
	WorkerCount      int    `json:"worker_count" envconfig:"CHATCART_QUEUE_WORKER_COUNT"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"CHATCART_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"CHATCART_QUEUE_MONITORING_PORT"`
}

type HistoryConfig struct {
	// RelevantWindow bounds the relevant-history slice; the full history is
	// unbounded.
	RelevantWindow int `json:"relevant_window" envconfig:"CHATCART_HISTORY_RELEVANT_WINDOW"`
}

type LockConfig struct {
	// TTLSeconds is how long an acquired actor lock lives before the backend
	// expires it. It must stay short relative to the locked critical
	// sections so a crashed holder cannot park an actor forever.
	TTLSeconds int `json:"ttl_seconds" envconfig:"CHATCART_LOCK_TTL_SECONDS"`
	// WaitTimeoutSeconds bounds the total time spent retrying acquisition
	// before the caller's operation fails.
	WaitTimeoutSeconds int `json:"wait_timeout_seconds" envconfig:"CHATCART_LOCK_WAIT_TIMEOUT_SECONDS"`
}

type PreOrderConfig struct {
	// TTLMinutes is the lifetime of a pending order before the opportunistic
	// sweep deletes it.
	TTLMinutes int `json:"ttl_minutes" envconfig:"CHATCART_PREORDER_TTL_MINUTES"`
	// TokenTTLMinutes is the Redis expiry backstop on action tokens; explicit
	// deletion on redemption or supersession is the primary mechanism.
	TokenTTLMinutes int `json:"token_ttl_minutes" envconfig:"CHATCART_PREORDER_TOKEN_TTL_MINUTES"`
}

type AgentConfig struct {
	// Endpoint receives the conversation context and returns structured
	// responses. Processing latency here is the slow phase of the worker.
	Endpoint       string `json:"endpoint" envconfig:"CHATCART_AGENT_ENDPOINT"`
	AuthToken      string `json:"auth_token" envconfig:"CHATCART_AGENT_AUTH_TOKEN"`
	TimeoutSeconds int    `json:"timeout_seconds" envconfig:"CHATCART_AGENT_TIMEOUT_SECONDS"`
}

type SenderConfig struct {
	// Endpoint is the outbound channel provider used to deliver messages to
	// actors.
	Endpoint  string `json:"endpoint" envconfig:"CHATCART_SENDER_ENDPOINT"`
	AuthToken string `json:"auth_token" envconfig:"CHATCART_SENDER_AUTH_TOKEN"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CHATCART_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CHATCART_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CHATCART_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"CHATCART_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"CHATCART_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	History         HistoryConfig    `json:"history"`
	Lock            LockConfig       `json:"lock"`
	PreOrder        PreOrderConfig   `json:"pre_order"`
	Agent           AgentConfig      `json:"agent"`
	Sender          SenderConfig     `json:"sender"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("chatcart", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called chatcart.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Chatcart Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.MessageQueue == "" {
		cnf.Queue.MessageQueue = "new:message"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.WorkerCount <= 0 {
		cnf.Queue.WorkerCount = 10
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}

	if cnf.History.RelevantWindow <= 0 {
		cnf.History.RelevantWindow = DEFAULT_RELEVANT_WINDOW
	}

	if cnf.Lock.TTLSeconds <= 0 {
		cnf.Lock.TTLSeconds = 30
	}
	if cnf.Lock.WaitTimeoutSeconds <= 0 {
		cnf.Lock.WaitTimeoutSeconds = 15
	}

	if cnf.PreOrder.TTLMinutes <= 0 {
		cnf.PreOrder.TTLMinutes = 10
	}
	if cnf.PreOrder.TokenTTLMinutes <= 0 {
		cnf.PreOrder.TokenTTLMinutes = cnf.PreOrder.TTLMinutes
	}

	if cnf.Agent.TimeoutSeconds <= 0 {
		cnf.Agent.TimeoutSeconds = 120
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	if mockConfig.History.RelevantWindow <= 0 {
		mockConfig.History.RelevantWindow = DEFAULT_RELEVANT_WINDOW
	}
	if mockConfig.Lock.TTLSeconds <= 0 {
		mockConfig.Lock.TTLSeconds = 30
	}
	if mockConfig.Lock.WaitTimeoutSeconds <= 0 {
		mockConfig.Lock.WaitTimeoutSeconds = 15
	}
	if mockConfig.PreOrder.TTLMinutes <= 0 {
		mockConfig.PreOrder.TTLMinutes = 10
	}
	if mockConfig.PreOrder.TokenTTLMinutes <= 0 {
		mockConfig.PreOrder.TokenTTLMinutes = mockConfig.PreOrder.TTLMinutes
	}
	if mockConfig.Queue.MessageQueue == "" {
		mockConfig.Queue.MessageQueue = "new:message"
	}
	if mockConfig.Queue.NumberOfQueues <= 0 {
		mockConfig.Queue.NumberOfQueues = 4
	}
	if mockConfig.Agent.TimeoutSeconds <= 0 {
		mockConfig.Agent.TimeoutSeconds = 120
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
