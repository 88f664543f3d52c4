// Package runtime lets Go code hold and manipulate objects of embedded
// Starlark interpreters without breaking either side's lifetime rules.
//
// # Quick Start
//
//	rt, err := runtime.New(config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(context.Background())
//
//	interp, err := rt.NewInterpreter("main")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tok := interp.Attach(context.Background())
//	defer tok.Release()
//
//	if err := tok.Exec("main.star", "xs = [1, 2, 3]"); err != nil {
//	    log.Fatal(err)
//	}
//	xs, _ := tok.Global("xs")
//	ints, err := runtime.Extract[[]int](xs) // [1 2 3]
//
// # Tokens
//
// A Token proves the caller may touch an interpreter's objects. Attach
// blocks until the interpreter lock is free; a goroutine that already holds
// a token re-enters by passing tok.Context(), which yields a nested,
// non-owning token. Host functions run under a nested token as well.
// Tokens are released in LIFO order; releasing the owning token drains
// deferred decrements and unlocks.
//
// # Handles
//
// Borrowed handles are valid until their token is released. Owned handles
// carry a strong reference and may be stored or sent to other goroutines:
//
//	owned := b.ToOwned()
//	go func() {
//	    owned.Close() // no lock needed; applied at the next Attach
//	}()
//
// Clone needs the lock and attaches transiently when ctx carries no token.
// Only decrements are ever deferred.
//
// # Host Functions and Types
//
//	rt.RegisterFunc("math", "add", func(a, b int) (int, error) {
//	    return a + b, nil
//	})
//
//	rt.RegisterType(runtime.TypeSpec{
//	    Name:    "Counter",
//	    GoType:  reflect.TypeOf(&Counter{}),
//	    Methods: map[string]runtime.Method{"inc": counterInc},
//	})
//
// Errors returned by host functions become host exceptions carrying the
// error chain as their causes. Token.Fetch, Token.Restore and ErrPending
// give host functions direct control over the pending exception.
//
// # Interpreter Identity
//
// Every handle remembers the interpreter that created it. Using it under a
// token of another interpreter panics, as do other violations of token
// discipline; conversion failures and host exceptions are returned as
// errors.
package runtime
