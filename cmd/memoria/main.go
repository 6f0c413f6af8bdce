// Command memoria はメモ・リマインダー・連絡先を管理するAPIサーバー。
//
// 使い方:
//
//	memoria [serve|migrate|cleanup|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/memoria/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "memoria: %v\n", err)
		os.Exit(1)
	}
}
