package api

import (
	"time"
)

// NoRemoteResource is the sentinel used when a project declares no reference URI.
const NoRemoteResource = "http://none"

// ProjectDescriptor describes one executable test project discovered on disk.
// Descriptors are immutable once published to the catalog; consumers that need
// to modify one must work on a Clone.
type ProjectDescriptor struct {
	ID                    string       `json:"id"`
	Label                 string       `json:"label"`
	Description           string       `json:"description,omitempty"`
	LocalPath             string       `json:"localPath"`
	RemoteResource        string       `json:"remoteResource"`
	Parameters            ParameterSet `json:"parameters"`
	TranslationTemplateID string       `json:"translationTemplateId,omitempty"`
	TagIDs                []string     `json:"tagIds,omitempty"`
	DependencyIDs         []string     `json:"dependencyIds,omitempty"`
	TestObjectTypeIDs     []string     `json:"testObjectTypeIds,omitempty"`

	// Static size of the project, used to seed progress estimates.
	SuiteCount int `json:"suiteCount"`
	CaseCount  int `json:"caseCount"`
	StepCount  int `json:"stepCount"`

	ModTime time.Time `json:"modTime"`
}

// Clone returns a deep copy of the descriptor.
func (d *ProjectDescriptor) Clone() *ProjectDescriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Parameters = d.Parameters.Clone()
	c.TagIDs = cloneStrings(d.TagIDs)
	c.DependencyIDs = cloneStrings(d.DependencyIDs)
	c.TestObjectTypeIDs = cloneStrings(d.TestObjectTypeIDs)
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
