// bomflow — инструмент командной строки конвейера закупок.
//
// Использование:
//
//	bomflow [--api-url URL] [--json] [--knowledge-db PATH] <command> [flags]
//
// Команды:
//
//	run        Локальный прогон BOM с живым журналом
//	submit     Подача BOM через API
//	project    Просмотр проектов через API
//	knowledge  Администрирование базы знаний
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/bomflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL, kbPath string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "bomflow",
		Short:         "bomflow — BOM procurement pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&kbPath, "knowledge-db", "", "Knowledge SQLite path (default from config)")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	kbPathFn := func() string { return kbPath }

	rootCmd.AddCommand(
		cli.NewRunCmd(outputFn, kbPathFn),
		cli.NewSubmitCmd(clientFn, outputFn),
		cli.NewProjectCmd(clientFn, outputFn),
		cli.NewKnowledgeCmd(outputFn, kbPathFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
