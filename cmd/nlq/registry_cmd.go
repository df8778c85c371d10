package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"

	"nlq-resolver/internal/common/validation"
	"nlq-resolver/pkg/registry"
)

func newRegistryCmd(opts *rootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and maintain the activity registry",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "Registry file (default: the registry built into the binary)")

	load := func() (*registry.ActivityRegistry, error) {
		if path == "" {
			return registry.Default()
		}
		return registry.LoadRegistry(path)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered activities",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				reg, err := load()
				if err != nil {
					return err
				}
				if opts.output == "json" {
					return printJSON(cmd.OutOrStdout(), reg.Activities)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTASK TYPE\tVERSION\tSTATUS\tTIMEOUT\tRETRIES")
				for _, a := range reg.Activities {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", a.ID, a.TaskType, a.Version, a.ImplementationStatus, a.Timeout, a.Retries)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check ids, required fields and input schemas",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				reg, err := load()
				if err != nil {
					return fmt.Errorf("failed to load registry: %w", err)
				}
				if err := validateRegistry(reg); err != nil {
					return fmt.Errorf("registry validation failed: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Registry validation passed. Found %d activities.\n", len(reg.Activities))
				return err
			},
		},
		&cobra.Command{
			Use:   "update ID FIELD VALUE",
			Short: "Change one field of an activity in a registry file",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				if path == "" {
					return fmt.Errorf("--path is required for update")
				}
				reg, err := registry.LoadRegistry(path)
				if err != nil {
					return fmt.Errorf("failed to load registry: %w", err)
				}
				if err := updateActivity(reg, args[0], args[1], args[2]); err != nil {
					return err
				}
				reg.LastUpdated = time.Now().Format(time.RFC3339)
				if err := saveRegistry(reg, path); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Updated activity %s, field %s to %s\n", args[0], args[1], args[2])
				return err
			},
		},
	)
	return cmd
}

func validateRegistry(reg *registry.ActivityRegistry) error {
	if len(reg.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, activity := range reg.Activities {
		if activity.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[activity.ID] {
			return fmt.Errorf("duplicate activity ID: %s", activity.ID)
		}
		ids[activity.ID] = true

		if err := validation.ValidateActivityNaming(activity.ID); err != nil {
			return fmt.Errorf("activity %s: %w", activity.ID, err)
		}
		if activity.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", activity.ID)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("activity %s missing required field: TaskType", activity.ID)
		}
		if taskTypes[activity.TaskType] {
			return fmt.Errorf("duplicate task type: %s", activity.TaskType)
		}
		taskTypes[activity.TaskType] = true

		if activity.Category == "" {
			return fmt.Errorf("activity %s missing required field: Category", activity.ID)
		}
		if activity.ImplementationStatus != "" && !registry.KnownStatus(activity.ImplementationStatus) {
			return fmt.Errorf("activity %s has unknown status %q", activity.ID, activity.ImplementationStatus)
		}
		if _, err := activity.TimeoutDuration(); err != nil {
			return err
		}
		if len(activity.InputSchema) > 0 {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(activity.InputSchema)); err != nil {
				return fmt.Errorf("activity %s has invalid input schema: %w", activity.ID, err)
			}
		}
	}
	return nil
}

func updateActivity(reg *registry.ActivityRegistry, id, field, value string) error {
	for i := range reg.Activities {
		if reg.Activities[i].ID != id {
			continue
		}
		switch field {
		case "status":
			if !registry.KnownStatus(value) {
				return fmt.Errorf("invalid status %q (want %s, %s, %s or %s)", value,
					registry.StatusPlanned, registry.StatusInProgress, registry.StatusImplemented, registry.StatusVerified)
			}
			reg.Activities[i].ImplementationStatus = value
		case "version":
			reg.Activities[i].Version = value
		case "displayName":
			reg.Activities[i].DisplayName = value
		case "description":
			reg.Activities[i].Description = value
		case "timeout":
			updated := reg.Activities[i]
			updated.Timeout = value
			if _, err := updated.TimeoutDuration(); err != nil {
				return err
			}
			reg.Activities[i].Timeout = value
		case "retries":
			retries, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid retries value: %w", err)
			}
			reg.Activities[i].Retries = retries
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		return nil
	}
	return fmt.Errorf("activity with ID %s not found", id)
}

func saveRegistry(reg *registry.ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}
