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

import "errors"

// Expected control-flow outcomes consumed by callers via errors.Is. Hard
// failures keep their underlying error types.
var (
	// ErrTokenInvalid means an action token does not resolve to a live
	// pending order: never issued, expired, already redeemed, or superseded
	// by a newer proposal. Recoverable; surfaces to the user as "this
	// proposal is no longer available".
	ErrTokenInvalid = errors.New("proposal is no longer available, only the most recent one is actionable")

	// ErrObsolete means a message was superseded by a newer message for the
	// same actor while it was in flight.
	ErrObsolete = errors.New("message superseded by a newer message")

	// ErrLockTimeout means the actor lock could not be acquired within the
	// bounded retry window. The job fails and is retried by the queue.
	ErrLockTimeout = errors.New("could not acquire actor lock")
)

// apologyMessage is the user-visible fallback when agent processing fails.
// The inbound message is already recorded by then, so nothing is lost.
const apologyMessage = "Sorry, something went wrong on our side. Please try again in a moment."
