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
	"fmt"
	"log"
	"os"

	"github.com/chatcart/chatcart"
	"github.com/chatcart/chatcart/config"
	"github.com/chatcart/chatcart/database"
	"github.com/chatcart/chatcart/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Chatcart represents the CLI application, encapsulating the root Cobra command.
type Chatcart struct {
	cmd *cobra.Command
}

// chatcartInstance holds the runtime service instance and its configuration,
// shared across all subcommands.
type chatcartInstance struct {
	chatcart *chatcart.Chatcart
	cnf      *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the service instance
// before running any command.
func preRun(app *chatcartInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("chatcart.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newChatcart, err := setupChatcart(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.chatcart = newChatcart
		app.cnf = cnf

		return nil
	}
}

// setupChatcart creates and initializes a new service instance from the
// provided configuration. Agent and sender integrations come from the
// HTTP-backed adapters configured alongside the datasource.
func setupChatcart(cfg *config.Configuration) (*chatcart.Chatcart, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newChatcart, err := chatcart.NewChatcart(db, chatcart.NewHTTPAgent(cfg), chatcart.NewHTTPSender(cfg))
	if err != nil {
		return nil, fmt.Errorf("error creating chatcart: %v", err)
	}
	return newChatcart, nil
}

// NewCLI creates the command-line interface for the chatcart application.
func NewCLI() *Chatcart {
	var configFile string
	b := &chatcartInstance{}

	var rootCmd = &cobra.Command{
		Use:   "chatcart",
		Short: "Conversational commerce message worker",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./chatcart.json", "Configuration file for chatcart")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(syncCommands(b))
	rootCmd.AddCommand(configCommands())

	return &Chatcart{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Chatcart) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
