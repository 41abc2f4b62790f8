package omc

import (
	"fmt"
	"strings"
)

// VersionString returns the raw getVersion() banner.
func VersionString(s *Session) (string, error) {
	v, err := s.Call("getVersion")
	if err != nil {
		return "", err
	}
	return v.AsString()
}

// CompilerVersion queries and parses the compiler version.
func CompilerVersion(s *Session) (Version, error) {
	banner, err := VersionString(s)
	if err != nil {
		return Version{}, err
	}
	return ParseVersion(banner)
}

// ChangeDirectory sets the compiler's working directory, where simulation
// results are written, and returns the directory it reports afterwards.
func ChangeDirectory(s *Session, dir string) (string, error) {
	v, diag, err := s.Exec("cd", String(dir))
	if err != nil {
		return "", err
	}
	got, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("cd: %w", err)
	}
	if diag != "" {
		return "", NewError(fmt.Sprintf("could not change directory to %s", dir), diag)
	}
	return got, nil
}

// ModelicaPath returns the library search path.
func ModelicaPath(s *Session) (string, error) {
	v, err := s.Call("getModelicaPath")
	if err != nil {
		return "", err
	}
	return v.AsString()
}

// SetModelicaPath replaces the library search path.
func SetModelicaPath(s *Session, path string) error {
	return expectTrue(s, fmt.Sprintf("could not set Modelica path to %s", path), "setModelicaPath", String(path))
}

// InstallPackage asks the package manager to install a library version.
func InstallPackage(s *Session, pkg, version string, exactMatch bool) error {
	msg := fmt.Sprintf("could not install package %s %s", pkg, version)
	return expectTrue(s, msg, "installPackage", Ident(pkg), String(version), Named("exactMatch", Bool(exactMatch)))
}

// SetCommandLineOptions applies compiler flags such as "-d=newInst".
func SetCommandLineOptions(s *Session, options string) error {
	return expectTrue(s, fmt.Sprintf("could not set command line options %q", options), "setCommandLineOptions", String(options))
}

// CommandLineOptions returns the compiler flags currently in effect.
func CommandLineOptions(s *Session) ([]string, error) {
	v, err := s.Call("getCommandLineOptions")
	if err != nil {
		return nil, err
	}
	if v.Kind == KindString {
		return strings.Fields(v.Text), nil
	}
	return v.AsStrings()
}

// expectTrue runs a call that returns a success flag and turns anything but
// true into an Error carrying message and the drained diagnostics.
func expectTrue(s *Session, message, function string, args ...Arg) error {
	v, diag, err := s.Exec(function, args...)
	if err != nil {
		return err
	}
	if ok, err := v.AsBool(); err != nil || !ok {
		return NewError(message, diag)
	}
	return nil
}
