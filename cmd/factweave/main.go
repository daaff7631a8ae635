package main

import (
	"factweave/cmd/cmd"
	"factweave/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
