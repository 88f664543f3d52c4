// Command starbridge runs Starlark scripts through the hostbridge runtime
// and exercises its ownership model.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/wippyai/hostbridge/errors"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		var exc *errors.HostException
		if stderrors.As(err, &exc) {
			fmt.Fprintln(os.Stderr, exc.Format())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
