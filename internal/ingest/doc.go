// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest turns agent stream records into message state.
//
// An agent message starts LOADING and ends DONE, FAILED or CANCELLED.
// Records are applied strictly in arrival order; once the message is
// terminal the rest of the stream is read and discarded.
//
//	signal START      record run id
//	signal LLM_END    move content into an llm event
//	llm               append to content
//	anything else     append as an event
//	end of stream     DONE
//	stream error      FAILED, partial content kept
//
// # Usage
//
//	engine := ingest.NewEngine(repo, client, ingest.Config{UserID: email})
//	res, err := engine.Send(ctx, ingest.SendRequest{Prompt: "How many users?"})
//
// Cancel and CancelConversation may be called from any goroutine while
// Send is running.
package ingest
