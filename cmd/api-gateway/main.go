package main

import "github.com/ramiqadoumi/go-care-tasks/services/api-gateway/cli"

func main() {
	cli.Execute()
}
