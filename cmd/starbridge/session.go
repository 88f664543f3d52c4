package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"

	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/runtime"
)

// session keeps an executed script alive between calls. Functions are held
// as owned handles so they outlive the attachment that loaded them.
type session struct {
	rt     *runtime.Runtime
	interp *runtime.Interpreter
	file   string
	funcs  []funcInfo
}

type funcInfo struct {
	fn     *runtime.Owned
	name   string
	params []string
}

func (f funcInfo) signature() string {
	return f.name + "(" + strings.Join(f.params, ", ") + ")"
}

// loadSession executes file in a fresh interpreter and collects its
// top-level functions in name order.
func loadSession(ctx context.Context, target *config.Target, file string) (*session, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	rt, err := runtime.New(target, runtime.WithPrint(func(string, string, string) {}))
	if err != nil {
		return nil, err
	}
	interp, err := rt.NewInterpreter(filepath.Base(file))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	s := &session{rt: rt, interp: interp, file: file}
	err = interp.Do(ctx, func(tok *runtime.Token) error {
		if err := tok.Exec(file, src); err != nil {
			return err
		}
		for _, name := range interp.Globals() {
			g, err := tok.Global(name)
			if err != nil {
				return err
			}
			if g.TypeName() != "function" {
				continue
			}
			s.funcs = append(s.funcs, funcInfo{fn: g.ToOwned(), name: name, params: paramNames(g)})
		}
		return nil
	})
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return s, nil
}

// paramNames reports the declared parameters of a Starlark function. Under
// the limited ABI the raw value is unavailable and a single tuple input is
// offered instead.
func paramNames(b runtime.Borrowed) []string {
	v, err := b.Value()
	if err != nil {
		return []string{"*args"}
	}
	fn, ok := v.(*starlark.Function)
	if !ok {
		return []string{"*args"}
	}
	n := fn.NumParams() - fn.NumKwonlyParams() - boolInt(fn.HasVarargs()) - boolInt(fn.HasKwargs())
	names := make([]string, 0, n+1)
	for i := range n {
		name, _ := fn.Param(i)
		names = append(names, name)
	}
	if fn.HasVarargs() {
		name, _ := fn.Param(n + fn.NumKwonlyParams())
		names = append(names, "*"+name)
	}
	return names
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// call invokes function idx with arguments given as expressions. A
// parameter named *args takes a comma-separated list that is spread into
// the call.
func (s *session) call(ctx context.Context, idx int, exprs []string) (string, error) {
	f := s.funcs[idx]
	var out string
	err := s.interp.Do(ctx, func(tok *runtime.Token) error {
		fn := f.fn.Bind(tok)
		var args []any
		for i, expr := range exprs {
			expr = strings.TrimSpace(expr)
			if expr == "" {
				continue
			}
			if i < len(f.params) && strings.HasPrefix(f.params[i], "*") {
				rest, err := tok.Eval("(" + expr + ",)")
				if err != nil {
					return err
				}
				items, err := rest.Iter()
				if err != nil {
					return err
				}
				for _, it := range items {
					args = append(args, it)
				}
				continue
			}
			v, err := tok.Eval(expr)
			if err != nil {
				return fmt.Errorf("%s: %w", f.params[i], err)
			}
			args = append(args, v)
		}
		res, err := fn.Call(args...)
		if err != nil {
			return err
		}
		out = res.Repr()
		return nil
	})
	return out, err
}

func (s *session) status() string {
	st := s.interp.Stats()
	return fmt.Sprintf("live %d  refs %d  pending %d  drained %d  attaches %d",
		st.Live, st.Refs, st.Pending, st.Drained, st.Attaches)
}

// close drops the function handles and finalizes the runtime.
func (s *session) close(ctx context.Context) error {
	for _, f := range s.funcs {
		_ = f.fn.Close()
	}
	return s.rt.Close(ctx)
}
