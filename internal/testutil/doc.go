// Package testutil provides test helpers and assertion utilities shared
// across this module's test suites.
//
// This is an internal package and is not part of the public API. It is used
// across the test suites to reduce boilerplate and provide consistent
// assertion patterns.
//
// # Assertion Helpers
//
// The package provides lightweight assertion functions that fail the test
// immediately on mismatch:
//
//   - [AssertNoError] — fails if err is non-nil
//   - [AssertError] — fails if err is nil
//   - [AssertEqual] — performs deep equality comparison
//   - [AssertContains] — checks string containment
//
// Example:
//
//	resp, err := orch.Process(ctx, "hello", nil)
//	testutil.AssertNoError(t, err)
//	testutil.AssertContains(t, resp.Text, "world")
//
// # Stream Collector
//
// [CollectStream] drains an iter.Seq2[T, error] iterator into a slice,
// stopping on the first error. This is useful for testing streaming
// interfaces:
//
//	events, err := testutil.CollectStream(orch.ProcessStream(ctx, "hello", nil))
//	testutil.AssertNoError(t, err)
//	testutil.AssertEqual(t, 3, len(events))
//
// # Mock Packages
//
// A mock implementation of agent.Tool is available for tests that need a
// configurable, call-tracking tool without standing up a real backend:
//
//   - [github.com/Ace-Of-Snakes/agent-rag-env/internal/testutil/mocktool] — mock agent tool
//
// llmclient.Client and embedder.Client are concrete structs with no
// interface seam to mock; tests exercising them spin up an httptest.Server
// instead (see internal/agent and internal/processor's own test files).
package testutil
