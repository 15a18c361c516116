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
	"net/http"

	model2 "github.com/chatcart/chatcart/api/model"

	"github.com/gin-gonic/gin"
)

// QueueMessage accepts an inbound chat message and enqueues it for
// asynchronous worker processing. The caller gets the assigned message id
// back immediately; delivery of the reply happens out of band.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the message.
// - 202 Accepted: If the message is successfully enqueued.
func (a Api) QueueMessage(c *gin.Context) {
	var newMessage model2.QueueMessage
	if err := c.ShouldBindJSON(&newMessage); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newMessage.ValidateQueueMessage(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	msg, err := a.chatcart.QueueInboundMessage(c.Request.Context(), newMessage.ActorID, newMessage.Text, newMessage.SourceTimestampOrNow())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message_id": msg.MessageID,
		"actor_id":   msg.ActorID,
		"status":     "queued",
	})
}

// GetQueuedMessage returns a message that is still waiting in the queue.
// Once the worker has processed it the lookup returns 404.
func (a Api) GetQueuedMessage(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /messages/:id"})
		return
	}

	msg, err := a.chatcart.GetQueuedMessage(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found in queue"})
		return
	}

	c.JSON(http.StatusOK, msg)
}
