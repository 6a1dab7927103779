package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/kweilin/lessonforge/pkg/log"
)

func main() {
	// Optional .env for local runs; the environment wins over the file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Could not load .env: %v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
