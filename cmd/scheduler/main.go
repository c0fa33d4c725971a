package main

import "github.com/ramiqadoumi/go-care-tasks/services/scheduler/cli"

func main() {
	cli.Execute()
}
