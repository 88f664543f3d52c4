// Package hostbridge embeds Starlark sub-interpreters in Go behind an
// explicit ownership and lifetime model.
//
// Host objects live in a per-interpreter heap with Go-side reference
// counts. Access to that heap is only legal while holding an attachment
// token, and references dropped without one are parked in a lock-free
// queue until the next attachment applies them.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	hostbridge/
//	├── runtime/         Runtime, Interpreter, Token, Borrowed and Owned handles
//	├── engine/          Starlark glue: dialect, thread pool, exception shapes
//	├── transcoder/      Go <-> Starlark conversion, schema-driven lift/lower
//	├── resource/        Refcounted host object heap with generations
//	├── reclaim/         Deferred reclamation queue, one shard per interpreter
//	├── gil/             Interpreter lock (standard and disabled modes)
//	├── config/          Target description loaded with koanf
//	├── errors/          Structured errors and host exceptions
//	└── cmd/starbridge/  CLI: run, stress, repl
//
// # Quick Start
//
//	rt, err := runtime.New(config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	interp, _ := rt.NewInterpreter("main")
//	err = interp.Do(ctx, func(tok *runtime.Token) error {
//	    if err := tok.Exec("main.star", "def greet(n): return 'Hello, ' + n"); err != nil {
//	        return err
//	    }
//	    greet, err := tok.Global("greet")
//	    if err != nil {
//	        return err
//	    }
//	    res, err := greet.Call("World")
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(res) // Hello, World
//	    return nil
//	})
//
// # Thread Safety
//
// Runtime and Interpreter are safe for concurrent use. A Token belongs to
// the goroutine that attached and must be released by it, in LIFO order.
// Borrowed handles are valid only while their token is live. Owned handles
// may cross goroutines freely; Close never blocks.
//
// # Lock Modes
//
// With gil_mode standard each interpreter has one mutex and attachments
// serialize. With gil_mode disabled attachments run in parallel and each
// host object is guarded by its own striped lock.
package hostbridge
