package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/project"
)

func TestInvocationParameters(t *testing.T) {
	cfg := api.TaskConfig{
		Arguments: api.NewParameterSet("maxFeatures", "10", " ", "ignored", "user", "a"),
		TestObject: api.TestObject{
			Resources: api.NewParameterSet("serviceEndpoint", "http://example.org/wfs", "user", "b"),
			Username:  "alice",
			Password:  "s3cret",
		},
	}

	assert.Equal(t, []string{
		"maxFeatures", "10",
		"user", "a",
		"serviceEndpoint", "http://example.org/wfs",
		"user", "b",
		"username", "alice",
		"password", "s3cret",
		"authUser", "alice",
		"authPwd", "s3cret",
		"authMethod", "basic",
	}, invocationParameters(cfg))
}

func TestInvocationParameters_EmptyCredentials(t *testing.T) {
	params := invocationParameters(api.TaskConfig{})
	assert.Equal(t, []string{
		"username", "", "password", "", "authUser", "", "authPwd", "", "authMethod", "basic",
	}, params)
}

func TestEstimateSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Demo-soapui-project.xml")
	require.NoError(t, os.WriteFile(path, []byte(demoProject), 0o644))
	meta, err := project.Load(path)
	require.NoError(t, err)

	tests := []struct {
		name  string
		cases []string
		suite string
		want  int
	}{
		{name: "project", want: 4},
		{name: "suite", suite: "TS1", want: 3},
		{name: "case in suite", cases: []string{"TC1"}, suite: "TS1", want: 2},
		{name: "cases across suites", cases: []string{"TC2", "TC3"}, want: 2},
		{name: "unmatched case falls back to suite", cases: []string{"nope"}, suite: "TS2", want: 1},
		{name: "unknown suite", suite: "TS9", want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateSteps(meta, tt.cases, tt.suite))
		})
	}
	assert.Zero(t, estimateSteps(nil, nil, ""))
}
