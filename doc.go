/*
Package switchyard is an executable-graph workflow engine. Machines are
graphs of typed nodes (state, task, context, tool, init, note) whose
edges carry guards and context-access permissions. Execution follows the
rails automatically wherever the graph leaves a single sensible path and
hands control to an LLM agent only where a real decision exists.

The core step function is pure: it never performs I/O, it returns a new
snapshot plus a list of effects (model invocations, tool calls) for the
host to execute. That makes every snapshot checkpointable and every run
replayable.

# Architecture

The engine is hexagonal. The runtime core (stepping, rails, safety
limits, meta-tools) is decoupled from the adapters: state stores
(memory, Redis), machine loaders (memory, file), a model client for the
Anthropic Messages API, and HTTP/MCP servers. Hosts that want a simple
blocking loop use the Engine facade; hosts that want full control over
effect execution drive the core step function directly.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/switchyard-dev/switchyard"
		"github.com/switchyard-dev/switchyard/pkg/dsl"
	)

	func main() {
		machine, err := dsl.New("greeter").
			Node("start").Type("init").Edge("greet").Done().
			Node("greet").Type("state").Edge("done").Done().
			Node("done").Type("state").Done().
			Build()
		if err != nil {
			log.Fatal(err)
		}

		eng := switchyard.New()
		state, status, err := eng.Start(context.Background(), machine, "session-1")
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("finished at %s (%s)", state.Paths[0].CurrentNode, status)
	}

Machines that reach agent decisions additionally need a model client,
wired with WithModelClient; see pkg/adapters/model.
*/
package switchyard
