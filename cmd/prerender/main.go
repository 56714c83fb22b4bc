package main

import (
	"os"

	"content-gateway/platform/logger"
)

func main() {
	logger.Init(logger.FromEnv())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
