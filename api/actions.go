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
	"errors"
	"net/http"

	"github.com/chatcart/chatcart"
	model2 "github.com/chatcart/chatcart/api/model"

	"github.com/gin-gonic/gin"
)

// SubmitAction executes an interactive button callback: confirm or discard a
// pending order proposal, or switch its delivery type. Spent, superseded or
// foreign tokens all answer 409 so clients can render the same "proposal no
// longer available" state for every stale button.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the action.
// - 409 Conflict: If the action token is invalid, spent or superseded.
// - 200 OK: If the action is successfully processed.
func (a Api) SubmitAction(c *gin.Context) {
	var newAction model2.SubmitAction
	if err := c.ShouldBindJSON(&newAction); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newAction.ValidateSubmitAction(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	err := a.chatcart.ProcessAction(c.Request.Context(), newAction.ActorID, newAction.ActionID)
	if err != nil {
		if errors.Is(err, chatcart.ErrTokenInvalid) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
