// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"ican-workers/pkg/registry"
)

const defaultRegistryPath = "configs/activity-registry.json"

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = runAdd(os.Args[2:])
	case "update":
		err = runUpdate(os.Args[2:])
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ExitOnError)
		path := fs.String("path", defaultRegistryPath, "Path to registry file")
		fs.Parse(os.Args[2:])
		var n int
		if n, err = validateRegistry(*path); err == nil {
			fmt.Printf("Registry validation passed. Found %d activities.\n", n)
		}
	case "sync":
		fs := flag.NewFlagSet("sync", flag.ExitOnError)
		path := fs.String("path", defaultRegistryPath, "Path to registry file")
		fs.Parse(os.Args[2:])
		var n int
		if n, err = syncRegistry(*path); err == nil {
			fmt.Printf("Wrote %d activities to %s\n", n, *path)
		}
	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	id := fs.String("id", "", "Activity ID (e.g., cast-vote)")
	displayName := fs.String("displayName", "", "Display name")
	description := fs.String("description", "", "Description")
	category := fs.String("category", "", "Category (governance, investment, exchange)")
	taskType := fs.String("taskType", "", "Zeebe job type, defaults to the ID")
	version := fs.String("version", "1.0.0", "Version")
	status := fs.String("status", "planned", "Implementation status (planned, in-progress, completed)")
	fs.Parse(args)

	if *id == "" || *displayName == "" || *category == "" {
		fs.Usage()
		return fmt.Errorf("id, displayName and category are required")
	}
	if *taskType == "" {
		*taskType = *id
	}

	if err := addActivity(*path, registry.Activity{
		ID:                   *id,
		DisplayName:          *displayName,
		Description:          *description,
		Category:             *category,
		Version:              *version,
		TaskType:             *taskType,
		ImplementationStatus: *status,
		InputSchema:          map[string]interface{}{"type": "object"},
		ErrorCodes:           []string{},
		Timeout:              "10s",
		Retries:              3,
	}); err != nil {
		return err
	}
	fmt.Printf("Added activity: %s\n", *id)
	return nil
}

func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	id := fs.String("id", "", "Activity ID to update")
	field := fs.String("field", "", "Field to update (status, version, timeout, retries, processes, ...)")
	value := fs.String("value", "", "New value for the field")
	fs.Parse(args)

	if *id == "" || *field == "" || *value == "" {
		fs.Usage()
		return fmt.Errorf("id, field and value are required")
	}
	if err := updateActivity(*path, *id, *field, *value); err != nil {
		return err
	}
	fmt.Printf("Updated activity %s, field %s to %s\n", *id, *field, *value)
	return nil
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new activity to the registry
  update   Update an existing activity's field
  validate Validate the registry file
  sync     Write the built-in activity catalog to the registry file
  help     Show this help message

Examples:
  registry-updater sync -path configs/activity-registry.json
  registry-updater add -id reconcile-allocations -displayName "Reconcile Allocations" -category investment
  registry-updater update -id cast-vote -field timeout -value 15s
  registry-updater validate -path configs/activity-registry.json`)
}
