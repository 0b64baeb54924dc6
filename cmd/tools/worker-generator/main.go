// cmd/tools/worker-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"ican-workers/pkg/registry"
)

func main() {
	activity := flag.String("activity", "", "Activity ID from registry (e.g., cast-vote)")
	outputDir := flag.String("output", "./internal/workers/", "Output directory for the generated worker")
	registryPath := flag.String("registry", "configs/activity-registry.json", "Path to the activity registry JSON file")
	flag.Parse()

	if *activity == "" {
		fmt.Println("Usage: worker-generator --activity <id> --output <dir> [--registry <path>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/tools/worker-generator --activity cast-vote --output /tmp/workers")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Registry %s not readable (%v), using built-in catalog\n", *registryPath, err)
		reg = registry.Catalog()
	}

	found, ok := reg.Find(*activity)
	if !ok {
		fmt.Printf("Activity '%s' not found in registry\n", *activity)
		os.Exit(1)
	}

	files, err := Generate(found, *outputDir)
	for _, f := range files {
		fmt.Printf("✓ Generated %s\n", f)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement Service.Execute against the domain engine\n")
	fmt.Printf("  2. Register the worker in cmd/worker-manager/main.go\n")
	fmt.Printf("  3. Add configuration under workers.%s in configs/config.yaml\n", found.TaskType)
}
