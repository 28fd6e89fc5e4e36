// Package runner is a cooperative, single-threaded test scheduler.
//
// Tests are declared into a tree of modules, queued, and then drained by
// Runner.Run on the calling goroutine. Each test expands into a fixed chain
// of steps:
//
//	before -> before hooks -> preserve env -> beforeEach hooks -> body ->
//	afterEach hooks (reversed) -> after hooks (reversed) -> finish
//
// A step may suspend the chain by acquiring pause tokens (Assert.Async or
// Assert.Await). The loop then waits until every token is released, the
// test times out, or the run is aborted. Releases and timeouts are always
// posted back to the loop; nothing re-enters the loop from a caller's stack.
//
// Progress is reported through an eventbus.Bus using the Event* type
// strings. Payloads are copies; consumers never see live scheduler state.
package runner
