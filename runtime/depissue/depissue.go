// Package depissue implements the Dependency Issue Classifier (C11). It
// scans a failed tool's error string against known patterns and emits a
// structured DependencyIssue with suggested remediation, mirroring
// core/dependency_manager.py's DependencyIssueType taxonomy in structure
// (English strings, not the original's Chinese ones).
package depissue

import "regexp"

// Kind is the closed classification taxonomy.
type Kind string

const (
	KindMissingPackage    Kind = "missing_package"
	KindVersionConflict   Kind = "version_conflict"
	KindPermissionError   Kind = "permission_error"
	KindNetworkError      Kind = "network_error"
	KindCompatibilityIssue Kind = "compatibility_issue"
)

// Issue describes one classified dependency problem found in a tool's error
// output.
type Issue struct {
	Package            string
	Kind               Kind
	SuggestedSolutions []string
	InstallCommands    []string
}

type pattern struct {
	re   *regexp.Regexp
	kind Kind
}

// patterns is checked in order; every matching pattern yields one issue, in
// this order. Package-capturing patterns use submatch group 1 for the
// package/module name.
var patterns = []pattern{
	{regexp.MustCompile(`ModuleNotFoundError: No module named '([^']+)'`), KindMissingPackage},
	{regexp.MustCompile(`ImportError: No module named '([^']+)'`), KindMissingPackage},
	{regexp.MustCompile(`cannot find package "([^"]+)"`), KindMissingPackage},
	{regexp.MustCompile(`([^\s]+)\x{672a}\x{5b89}\x{88c5}`), KindMissingPackage}, // "<pkg>未安装" (not installed)
	{regexp.MustCompile(`(?i)version conflict|incompatible version of ([^\s]+)`), KindVersionConflict},
	{regexp.MustCompile(`(?i)permission denied|access is denied`), KindPermissionError},
	{regexp.MustCompile(`(?i)connection (refused|timed out)|network is unreachable|no route to host`), KindNetworkError},
	{regexp.MustCompile(`(?i)incompatible|not compatible with`), KindCompatibilityIssue},
}

// Classify scans errText and returns every DependencyIssue found. Tool
// errors that match no known pattern yield no issues (not an error).
func Classify(errText string) []Issue {
	var issues []Issue
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(errText)
		if m == nil {
			continue
		}
		pkg := ""
		if len(m) > 1 {
			pkg = m[1]
		}
		issues = append(issues, Issue{
			Package:            pkg,
			Kind:               p.kind,
			SuggestedSolutions: suggestedSolutions(p.kind, pkg),
			InstallCommands:    installCommands(p.kind, pkg),
		})
	}
	return issues
}

func suggestedSolutions(kind Kind, pkg string) []string {
	switch kind {
	case KindMissingPackage:
		return []string{
			"install the missing package: " + pkg,
			"verify the package name is spelled correctly",
		}
	case KindVersionConflict:
		return []string{"pin a compatible version of " + pkg, "check for conflicting transitive dependencies"}
	case KindPermissionError:
		return []string{"run with sufficient filesystem/network permissions", "check directory ownership"}
	case KindNetworkError:
		return []string{"check network connectivity", "retry with backoff", "verify firewall/proxy settings"}
	case KindCompatibilityIssue:
		return []string{"check the tool's documented supported versions"}
	default:
		return nil
	}
}

// installCommands returns advisory install command strings only — the
// classifier never executes a package manager itself (DESIGN.md Open
// Question decision 5).
func installCommands(kind Kind, pkg string) []string {
	if kind != KindMissingPackage || pkg == "" {
		return nil
	}
	return []string{"pip install " + pkg, "go get " + pkg}
}
