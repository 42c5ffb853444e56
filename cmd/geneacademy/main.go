// Package main provides the entry point for the GeneAcademy HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "geneacademy",
	Short: "GeneAcademy content generation API server",
	Long:  "GeneAcademy turns uploaded study documents into reviewed educational content through a multi-stage LLM pipeline, exposed via REST with live progress streaming.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
