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
package api

import (
	"github.com/chatcart/chatcart"
	"github.com/chatcart/chatcart/api/middleware"
	"github.com/chatcart/chatcart/config"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	chatcart *chatcart.Chatcart
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/messages", a.QueueMessage)
	router.GET("/messages/:id", a.GetQueuedMessage)

	router.POST("/actions", a.SubmitAction)

	router.GET("/actors/:id/history", a.GetActorHistory)

	router.GET("/orders/:id", a.GetOrder)
	return a.router
}

func NewAPI(c *chatcart.Chatcart) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("chatcart"))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{chatcart: c, router: r}
}
