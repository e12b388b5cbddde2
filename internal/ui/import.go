package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"

	"github.com/javiermolinar/studyplanner/internal/profile"
)

// fixedFile is the YAML layout of a weekly schedule import.
type fixedFile struct {
	Schedules []fixedEntry `yaml:"schedules"`
}

type fixedEntry struct {
	Title    string   `yaml:"title"`
	Category string   `yaml:"category"`
	Day      string   `yaml:"day"`
	Days     []string `yaml:"days"`
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
}

func (a *App) fixedImportCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import weekly commitments from a YAML file",
		Long: `Import fixed weekly commitments from a YAML file.

Each entry names one weekday with "day" or several with "days":

  schedules:
    - title: Calculus lecture
      category: university
      days: [monday, wednesday]
      start: "09:00"
      end: "10:30"
    - title: Part-time job
      category: work
      day: saturday
      start: "10:00"
      end: "14:00"

Every entry is validated before anything is written. With --replace the
existing commitments are swapped for the file's in one transaction.`,
		Example: `  studyplanner fixed import ~/semester.yaml
  studyplanner fixed import ~/semester.yaml --replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}

			path, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening schedule file: %w", err)
			}
			defer func() { _ = f.Close() }()

			count, err := importFixedSchedules(cmd.Context(), a.repo, a.userID(), f, replace)
			if err != nil {
				return err
			}

			verb := "Imported"
			if replace {
				verb = "Replaced schedule with"
			}
			a.printf("%s %d commitments from %s\n", verb, count, path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Replace existing commitments instead of adding")

	return cmd
}

// importFixedSchedules parses a YAML schedule and stores it for userID.
// Nothing is written when any entry is invalid.
func importFixedSchedules(ctx context.Context, repo profile.Repository, userID int64, r io.Reader, replace bool) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading schedule file: %w", err)
	}

	var file fixedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("parsing schedule file: %w", err)
	}

	var list []*profile.FixedSchedule
	for i, e := range file.Schedules {
		days := e.Days
		if e.Day != "" {
			days = append([]string{e.Day}, days...)
		}
		if len(days) == 0 {
			return 0, fmt.Errorf("entry %d (%q): no day given", i+1, e.Title)
		}
		for _, day := range days {
			fs, err := profile.NewFixedSchedule(userID, e.Title, e.Category, day, e.Start, e.End)
			if err != nil {
				return 0, fmt.Errorf("entry %d (%q): %w", i+1, e.Title, err)
			}
			list = append(list, fs)
		}
	}

	if replace {
		if err := repo.ReplaceFixedSchedules(ctx, userID, list); err != nil {
			return 0, fmt.Errorf("replacing commitments: %w", err)
		}
		return len(list), nil
	}

	imported := 0
	for _, fs := range list {
		if err := repo.CreateFixedSchedule(ctx, fs); err != nil {
			return imported, fmt.Errorf("importing %q: %w", fs.Title, err)
		}
		imported++
	}
	return imported, nil
}

func resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	return absPath, nil
}
