// Package httpclient provides a shared HTTP client with retry, SSE streaming,
// and typed JSON helpers for backends that expose a plain REST API instead of
// a dedicated Go SDK.
//
// This is an internal package and is not part of the public API. It backs the
// local model-serving client (text generation, chat, embeddings) and any
// other component that talks to an HTTP API over a custom wire format.
//
// # Client
//
// The [Client] type wraps net/http.Client with automatic retry on 429/503
// status codes, exponential backoff with jitter, and default headers
// (including bearer token authentication). Transport-level errors (no HTTP
// response at all) are returned without a retry. Configuration
// uses the functional options pattern:
//
//	c := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com/v1"),
//	    httpclient.WithBearerToken(apiKey),
//	    httpclient.WithRetries(3),
//	    httpclient.WithTimeout(30 * time.Second),
//	)
//
// # Typed JSON Requests
//
// The [DoJSON] generic function sends an HTTP request with a JSON body and
// decodes the JSON response into the specified type. It handles retries
// transparently:
//
//	type Response struct { Result string `json:"result"` }
//	resp, err := httpclient.DoJSON[Response](ctx, client, "POST", "/chat", reqBody)
//
// # Server-Sent Events
//
// The [StreamSSE] function opens an SSE connection and returns an
// iter.Seq2[SSEEvent, error] iterator that yields parsed SSE events. Backends
// that stream newline-delimited JSON instead of SSE frames use [Client.Do]
// directly with a bufio.Scanner over the response body.
//
// # Error Handling
//
// API errors are returned as [*APIError] with the HTTP status code and
// response body. The client automatically parses JSON error bodies to extract
// human-readable error messages.
package httpclient
