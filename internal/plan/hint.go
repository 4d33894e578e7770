package plan

import "regexp"

// CompiledPattern wraps a compiled regular expression used to disambiguate
// deployment candidates by their deployment-local task name (spec §4.5,
// "deployment-hint regex disambiguation").
type CompiledPattern struct {
	re *regexp.Regexp
}

// CompilePattern compiles a deployment-hint pattern. Callers hold onto the
// returned value and attach it to a DeploymentHint.
func CompilePattern(expr string) (*CompiledPattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &CompiledPattern{re: re}, nil
}

// MatchString reports whether the deployment-local task name satisfies the
// hint.
func (p *CompiledPattern) MatchString(name string) bool {
	if p == nil {
		return true
	}
	return p.re.MatchString(name)
}

// Matches reports whether a deployment hint accepts a candidate, identified
// by its deployment model name and the deployment-local task name the
// candidate would bind to.
func (h DeploymentHint) Matches(deploymentModel, localTaskName string) bool {
	if h.DeploymentModel != "" && h.DeploymentModel != deploymentModel {
		return false
	}
	if h.NamePattern != nil && !h.NamePattern.MatchString(localTaskName) {
		return false
	}
	return true
}
