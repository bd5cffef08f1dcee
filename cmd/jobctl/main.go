// Command jobctl is the operator CLI for inspecting and driving the
// orchestrator's job and repository state directly against the storage
// plane. Grounded on the teacher's cmd/cli, which talks to a landlord HTTP
// API; this domain has no admin HTTP surface (DESIGN.md), so jobctl opens
// the same database.Provider the worker process uses and issues
// tenant-scoped storage calls in-process instead of HTTP requests.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
)

func main() {
	cmd := newRootCommand()
	if err := fang.Execute(
		context.Background(),
		cmd,
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			if err == nil {
				return
			}
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
		}),
	); err != nil {
		os.Exit(1)
	}
}
