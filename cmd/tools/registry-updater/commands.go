// cmd/tools/registry-updater/commands.go
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ican-workers/pkg/registry"
)

var now = time.Now

func loadOrEmpty(path string) (*registry.ActivityRegistry, error) {
	reg, err := registry.LoadRegistry(path)
	if err == nil {
		return reg, nil
	}
	if os.IsNotExist(err) {
		return &registry.ActivityRegistry{Version: "1.0.0"}, nil
	}
	return nil, fmt.Errorf("failed to load registry: %w", err)
}

func save(reg *registry.ActivityRegistry, path string) error {
	reg.LastUpdated = now().UTC().Format(time.RFC3339)
	return registry.SaveRegistry(reg, path)
}

// addActivity appends a new activity. Task types must stay unique since the
// worker manager keys schemas on them.
func addActivity(path string, activity registry.Activity) error {
	reg, err := loadOrEmpty(path)
	if err != nil {
		return err
	}
	for _, existing := range reg.Activities {
		if existing.ID == activity.ID || existing.TaskType == activity.TaskType {
			return fmt.Errorf("activity %s already exists", activity.ID)
		}
	}
	reg.Activities = append(reg.Activities, activity)
	if err := reg.Validate(); err != nil {
		return err
	}
	return save(reg, path)
}

func updateActivity(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	idx := -1
	for i := range reg.Activities {
		if reg.Activities[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	a := &reg.Activities[idx]
	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil || retries < 0 {
			return fmt.Errorf("invalid retries value %q", value)
		}
		a.Retries = retries
	case "processes":
		a.Processes = splitList(value)
	case "errorCodes":
		a.ErrorCodes = splitList(value)
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	return save(reg, path)
}

// validateRegistry checks the file and that it still covers every built-in
// task type. It returns the number of activities found.
func validateRegistry(path string) (int, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return 0, err
	}
	for _, builtin := range registry.Catalog().Activities {
		if _, ok := reg.Find(builtin.TaskType); !ok {
			return 0, fmt.Errorf("registry is missing task type %s", builtin.TaskType)
		}
	}
	return len(reg.Activities), nil
}

// syncRegistry overwrites the file with the built-in catalog, keeping any
// extra activities it already lists.
func syncRegistry(path string) (int, error) {
	reg := registry.Catalog()
	if existing, err := registry.LoadRegistry(path); err == nil {
		for _, a := range existing.Activities {
			if _, builtin := reg.Find(a.TaskType); !builtin {
				reg.Activities = append(reg.Activities, a)
			}
		}
	}
	return len(reg.Activities), save(reg, path)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
