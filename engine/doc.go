// Package engine holds the low-level glue between the bridge and the
// embedded Starlark interpreter.
//
// # Dialect
//
// Dialect selects the optional language features scripts may use and is
// turned into syntax.FileOptions for every parse:
//
//	opts := engine.Dialect{While: true, Recursion: true}.FileOptions()
//
// # Threads
//
// A *starlark.Thread is not safe for concurrent use. ThreadPool recycles
// threads so each attachment gets its own; Put clears thread-local state
// before a thread is reused.
//
// # Exceptions
//
// Starlark reports failures as *starlark.EvalError. Exception converts such an
// error, including one that wraps an exception raised by a Go callback, into
// an *errors.HostException carrying the exception type, message, traceback
// and cause chain. Scripts raise typed exceptions with the predeclared
// throw(type, message) builtin; fail(msg) raises type Error.
//
// # Names
//
// HostName maps Go and kebab-case names onto Starlark identifiers
// (snake_case), so registered functions, methods and struct fields read
// naturally from scripts.
package engine
