package task

import (
	"slices"
	"strings"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/project"
)

// invocationParameters flattens the task configuration into the alternating
// key/value list the engine applies in order: arguments, then test object
// resources, then the fixed authentication properties. Duplicates are kept;
// the engine lets the last one win.
func invocationParameters(cfg api.TaskConfig) []string {
	var params []string
	cfg.Arguments.Each(func(key, value string) {
		if strings.TrimSpace(key) != "" {
			params = append(params, key, value)
		}
	})
	cfg.TestObject.Resources.Each(func(name, uri string) {
		params = append(params, name, uri)
	})

	user, password := cfg.TestObject.Username, cfg.TestObject.Password
	return append(params,
		"username", user,
		"password", password,
		"authUser", user,
		"authPwd", password,
		"authMethod", "basic",
	)
}

// estimateSteps counts the enabled steps the selection will execute, using
// the same precedence as the adapter: cases, then suite, then project.
func estimateSteps(meta *project.Project, cases []string, suite string) int {
	if meta == nil {
		return 0
	}
	if len(cases) > 0 {
		n, matched := 0, false
		for _, s := range meta.Suites {
			if suite != "" && s.Name != suite {
				continue
			}
			for _, c := range s.Cases {
				if slices.Contains(cases, c.Name) {
					matched = true
					n += c.StepCount()
				}
			}
		}
		if matched {
			return n
		}
	}
	if suite != "" {
		if s, ok := meta.Suite(suite); ok {
			return s.StepCount()
		}
	}
	return meta.StepCount()
}
