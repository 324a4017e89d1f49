// Command pdfqa answers questions about a directory of PDF documents. It
// indexes the corpus into a vector store and serves answers from the CLI,
// a terminal chat form or an HTTP JSON API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pdfqa/cmd/pdfqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
