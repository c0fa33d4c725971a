package main

import "github.com/ramiqadoumi/go-care-tasks/services/notifier/cli"

func main() {
	cli.Execute()
}
