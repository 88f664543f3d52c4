package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/runtime"
)

type runOptions struct {
	print      []string
	call       string
	args       []string
	resultType string
	stats      bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a script and optionally call one of its functions",
		Example: `  starbridge run script.star --print config
  starbridge run script.star --call add --arg 2 --arg 3
  starbridge run script.star --call squares --arg 4 --result-type "list<u32>"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.print, "print", nil, "globals to convert and print after execution")
	f.StringVar(&opts.call, "call", "", "function to call after execution")
	f.StringArrayVar(&opts.args, "arg", nil, "call argument as an expression (repeatable)")
	f.StringVar(&opts.resultType, "result-type", "", "schema type the result is lifted into, e.g. list<u32>")
	f.BoolVar(&opts.stats, "stats", false, "print interpreter and queue counters")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, file string, opts runOptions) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	rt, err := runtime.New(a.target, runtime.WithPrint(func(_, _, msg string) {
		fmt.Fprintln(out, msg)
	}))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	interp, err := rt.NewInterpreter(filepath.Base(file))
	if err != nil {
		return err
	}

	err = interp.Do(ctx, func(tok *runtime.Token) error {
		if err := tok.Exec(file, src); err != nil {
			return err
		}
		for _, name := range opts.print {
			g, err := tok.Global(name)
			if err != nil {
				return err
			}
			v, err := runtime.ToGo(g)
			if err != nil {
				return fmt.Errorf("convert %s: %w", name, err)
			}
			fmt.Fprintf(out, "%s = %v\n", name, v)
		}
		if opts.call == "" {
			return nil
		}
		return a.call(tok, out, opts)
	})
	if err != nil {
		return err
	}
	a.logger.Debug("script finished", zap.String("file", file), zap.Any("stats", interp.Stats()))

	if opts.stats {
		renderStats(out, rt)
	}
	return nil
}

func (a *app) call(tok *runtime.Token, out io.Writer, opts runOptions) error {
	fn, err := tok.Global(opts.call)
	if err != nil {
		return err
	}
	args := make([]any, len(opts.args))
	for i, expr := range opts.args {
		v, err := tok.Eval(expr)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}

	res, err := fn.Call(args...)
	if err != nil {
		return err
	}

	var v any
	if opts.resultType != "" {
		typ, err := runtime.ParseType(opts.resultType)
		if err != nil {
			return err
		}
		v, err = runtime.Lift(res, typ)
		if err != nil {
			return fmt.Errorf("lift result: %w", err)
		}
	} else if v, err = runtime.ToGo(res); err != nil {
		return fmt.Errorf("convert result: %w", err)
	}
	fmt.Fprintf(out, "result = %v\n", v)
	return nil
}
