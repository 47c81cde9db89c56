// Package dbtconfig prepares a dbt project directory for deployment. The
// deployed layout differs from the repository layout: dbt_project.yml and
// packages.yml live under a dbt_config/ subdirectory on the Airflow host.
package dbtconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	apperrors "github.com/teamfirst/deploy-dispatcher/internal/errors"
)

const (
	// ConfigDirName is the subdirectory the configuration files are moved into.
	ConfigDirName = "dbt_config"

	projectFile  = "dbt_project.yml"
	packagesFile = "packages.yml"
)

// Project is the subset of dbt_project.yml the dispatcher cares about. It is
// parsed only to confirm the file is a dbt project definition before the tree
// is shipped to the remote host.
type Project struct {
	Name    string `yaml:"name"`
	Profile string `yaml:"profile"`
	Version string `yaml:"version"`
}

// Stage copies the dbt directory at src into dst and restructures the copy.
// The source tree is never modified; dst holds the layout the remote host
// expects.
func Stage(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		return fmt.Errorf("failed to copy dbt directory to staging: %w", err)
	}
	return Restructure(dst)
}

// Restructure relocates dbt_project.yml (mandatory) and packages.yml
// (optional) into the dbt_config/ subdirectory of dir. A missing packages.yml
// is not an error: dbt projects without package dependencies are supported.
func Restructure(dir string) error {
	projectPath := filepath.Join(dir, projectFile)
	if _, err := os.Stat(projectPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", apperrors.ErrMissingProjectFile, dir)
		}
		return fmt.Errorf("failed to stat %s: %w", projectPath, err)
	}

	if _, err := LoadProject(projectPath); err != nil {
		return err
	}

	configDir := filepath.Join(dir, ConfigDirName)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", configDir, err)
	}

	if err := os.Rename(projectPath, filepath.Join(configDir, projectFile)); err != nil {
		return fmt.Errorf("failed to move %s: %w", projectFile, err)
	}

	packagesPath := filepath.Join(dir, packagesFile)
	if _, err := os.Stat(packagesPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", packagesPath, err)
	}
	if err := os.Rename(packagesPath, filepath.Join(configDir, packagesFile)); err != nil {
		return fmt.Errorf("failed to move %s: %w", packagesFile, err)
	}

	return nil
}

// LoadProject parses a dbt_project.yml file. A file that is not valid YAML
// fails the deployment before anything leaves the machine.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var project Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &project, nil
}
