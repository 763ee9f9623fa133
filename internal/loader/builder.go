package loader

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/project"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Project properties that carry descriptor metadata.
const (
	PropertyTranslationTemplateID = "etf.translation.template.collection.id"
	PropertyTagIDs                = "etf.tag.ids"
	PropertyDependencyIDs         = "etf.dependency.ids"
	PropertyTestObjectTypeIDs     = "etf.testobject.ids"
	PropertyIgnoreProperties      = "etf.ignore.properties"
	PropertyReference             = "etf.reference"

	// PropertyServiceEndpoint is supplied by the test object at run time and
	// is never offered as a parameter.
	PropertyServiceEndpoint = "serviceEndpoint"
)

// metadataProperties are never exposed as parameters.
var metadataProperties = map[string]bool{
	PropertyTranslationTemplateID: true,
	PropertyTagIDs:                true,
	PropertyDependencyIDs:         true,
	PropertyTestObjectTypeIDs:     true,
	PropertyIgnoreProperties:      true,
	PropertyReference:             true,
	PropertyServiceEndpoint:       true,
}

// idNamespace scopes name based descriptor ids.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/giantswarm/suidriver/descriptor"))

// Build reads the project at path and turns it into a descriptor. The
// project is only parsed, never executed.
func Build(path string) (*api.ProjectDescriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	meta, err := project.Load(abs)
	if err != nil {
		return nil, err
	}
	return describe(abs, info.ModTime(), meta), nil
}

func describe(path string, modTime time.Time, meta *project.Project) *api.ProjectDescriptor {
	d := &api.ProjectDescriptor{
		ID:                    descriptorID(meta.ID, path),
		Label:                 meta.Name,
		Description:           meta.Description,
		LocalPath:             path,
		RemoteResource:        remoteResource(meta.Property(PropertyReference)),
		TranslationTemplateID: normalizeID(meta.Property(PropertyTranslationTemplateID)),
		TagIDs:                idList(meta.Property(PropertyTagIDs)),
		DependencyIDs:         idList(meta.Property(PropertyDependencyIDs)),
		TestObjectTypeIDs:     idList(meta.Property(PropertyTestObjectTypeIDs)),
		SuiteCount:            enabledSuites(meta),
		CaseCount:             meta.CaseCount(),
		StepCount:             meta.StepCount(),
		ModTime:               modTime.UTC(),
	}
	if d.Label == "" {
		d.Label = strings.TrimSuffix(filepath.Base(path), project.DefaultSuffix)
	}

	ignored := make(map[string]bool)
	for _, key := range splitList(meta.Property(PropertyIgnoreProperties)) {
		ignored[key] = true
	}
	meta.Properties.Each(func(key, value string) {
		if metadataProperties[key] || ignored[key] {
			return
		}
		d.Parameters.Set(key, value)
	})
	return d
}

// descriptorID keeps a declared UUID (with or without the "EID" prefix), and
// otherwise derives a stable one from the declared id or, failing that, from
// the file path.
func descriptorID(declared, path string) string {
	if declared != "" {
		if id, err := uuid.Parse(strings.TrimPrefix(declared, "EID")); err == nil {
			return id.String()
		}
		return uuid.NewSHA1(idNamespace, []byte(declared)).String()
	}
	return uuid.NewSHA1(idNamespace, []byte(path)).String()
}

// normalizeID maps a referenced id onto the form descriptor ids take.
func normalizeID(ref string) string {
	if ref == "" {
		return ""
	}
	return descriptorID(ref, "")
}

func idList(value string) []string {
	var ids []string
	for _, ref := range splitList(value) {
		ids = append(ids, normalizeID(ref))
	}
	return ids
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func remoteResource(ref string) string {
	if ref == "" {
		return api.NoRemoteResource
	}
	u, err := url.Parse(ref)
	if err != nil || !u.IsAbs() {
		logging.Warn("Loader", "Invalid reference %q, using %s", ref, api.NoRemoteResource)
		return api.NoRemoteResource
	}
	return u.String()
}

func enabledSuites(meta *project.Project) int {
	n := 0
	for _, s := range meta.Suites {
		if !s.Disabled {
			n++
		}
	}
	return n
}

// isProjectFile reports whether name carries the project suffix.
func isProjectFile(name, suffix string) bool {
	return strings.HasSuffix(filepath.Base(name), suffix)
}
