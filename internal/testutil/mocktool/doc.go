// Package mocktool provides a mock implementation of the agent.Tool
// interface for testing.
//
// This is an internal package and is not part of the public API. It is used
// by agent and registry tests that need a controllable tool without a real
// backend.
//
// # Tool
//
// [Tool] implements agent.Tool with a configurable name, Definition, and
// execution behavior. It supports canned results, error injection, custom
// execute functions, and call tracking for assertions.
//
// Create a mock with functional options:
//
//	m := mocktool.New("search", mocktool.WithResult(agent.SuccessResult("result")))
//
// Configure error injection:
//
//	m := mocktool.New("search", mocktool.WithError(errors.New("network timeout")))
//
// Use a custom function for dynamic behavior:
//
//	m := mocktool.New("calc", mocktool.WithExecuteFunc(func(ctx context.Context, params map[string]any) (agent.Result, error) {
//	    // custom execution logic
//	}))
//
// Inspect call history:
//
//	_, _ = m.Execute(ctx, map[string]any{"query": "test"})
//	fmt.Println(m.ExecuteCalls()) // 1
//	fmt.Println(m.LastParams())   // map[query:test]
//
// The mock is safe for concurrent use. Call [Tool.Reset] to clear all
// recorded state between test cases.
package mocktool
