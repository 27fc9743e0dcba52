// addoperator creates or updates an operator in the operators file.
// Usage: addoperator [-file operators.yaml] <username> <password>
package main

import (
	"flag"
	"fmt"
	"os"

	"lotflow/internal/config"
	"lotflow/internal/service"
)

func main() {
	file := flag.String("file", "", "operators file (default OPERATORS_FILE)")
	flag.Parse()
	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: addoperator [-file operators.yaml] <username> <password>")
		os.Exit(2)
	}

	path := *file
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		path = cfg.OperatorsFile
	}

	ops, err := service.LoadOperators(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	ops, err = service.UpsertOperator(ops, flag.Arg(0), flag.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, "upsert:", err)
		os.Exit(1)
	}
	if err := service.SaveOperators(path, ops); err != nil {
		fmt.Fprintln(os.Stderr, "save:", err)
		os.Exit(1)
	}
	fmt.Printf("operator %q saved in %s\n", flag.Arg(0), path)
}
