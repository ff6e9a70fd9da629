// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent provides the HTTP client for the conversational agent backend.
//
// The agent answers a chat request with a newline-delimited JSON stream of
// records. This package frames that stream into lines, decodes each line into
// a Record and hands records to the caller one at a time. It also covers the
// small non-streaming endpoints: run cancel, run status and feedback.
//
// # Key Types
//
//   - Client: HTTP client for the agent API
//   - ChatRequest: Body of a streaming chat request
//   - RecordStream: Pull-based reader over a live response
//   - Record: One decoded stream record
//   - LineFramer: Byte buffer that splits arbitrary chunks into lines
//
// # Usage
//
// Open a stream and drain it:
//
//	client := agent.NewClient(&agent.ClientConfig{BaseURL: "http://127.0.0.1:9090/api/v1"})
//	stream, err := client.Open(ctx, req)
//	if err != nil {
//	    return err // *TransportError
//	}
//	defer stream.Close()
//	for {
//	    rec, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err // *StreamError or ErrStreamClosed
//	    }
//	    handle(rec)
//	}
//
// Malformed lines never surface as errors. They are logged and counted in
// Stats. Close may be called from any goroutine to abort a blocked Next.
package agent
