package model

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/omtest/internal/omc"
)

// Library is a package a test environment depends on.
type Library struct {
	Name    string
	Version string
	// Install fetches the library through the package manager before loading.
	Install bool
	// ExactMatch rejects other versions when installing.
	ExactMatch bool
}

// Environment is the compiler state models are tested in.
type Environment struct {
	// WorkDir becomes the compiler's working directory. Simulation results
	// land here.
	WorkDir string

	// ModelicaPath entries are put in front of the compiler's search path.
	ModelicaPath []string

	Libraries []Library

	// CommandLineOptions are compiler flags such as "-d=newInst".
	CommandLineOptions string
}

// Prepare applies env to a session: working directory, search path,
// library installation and loading, and compiler flags, in that order.
func Prepare(s *omc.Session, env Environment) error {
	if env.WorkDir != "" {
		if _, err := omc.ChangeDirectory(s, env.WorkDir); err != nil {
			return err
		}
	}

	if len(env.ModelicaPath) > 0 {
		current, err := omc.ModelicaPath(s)
		if err != nil {
			return err
		}
		if err := omc.SetModelicaPath(s, JoinSearchPath(env.ModelicaPath, current)); err != nil {
			return err
		}
	}

	for _, lib := range env.Libraries {
		if lib.Install {
			if err := omc.InstallPackage(s, lib.Name, lib.Version, lib.ExactMatch); err != nil {
				return err
			}
		}
		if err := LoadPackage(s, lib.Name, lib.Version); err != nil {
			return err
		}
	}

	if env.CommandLineOptions != "" {
		if err := omc.SetCommandLineOptions(s, env.CommandLineOptions); err != nil {
			return err
		}
	}
	return nil
}

// JoinSearchPath prepends entries to an existing search path using the
// platform list separator. Empty parts are dropped.
func JoinSearchPath(entries []string, current string) string {
	sep := string(filepath.ListSeparator)
	parts := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		if e != "" {
			parts = append(parts, e)
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return strings.Join(parts, sep)
}

// LibraryVersion returns the pinned version for pkg in env, if any.
func (env Environment) LibraryVersion(pkg string) string {
	for _, lib := range env.Libraries {
		if lib.Name == pkg {
			return lib.Version
		}
	}
	return ""
}

func (l Library) String() string {
	if l.Version == "" {
		return l.Name
	}
	return fmt.Sprintf("%s %s", l.Name, l.Version)
}
