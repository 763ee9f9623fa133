package driver

import (
	"github.com/giantswarm/suidriver/internal/config"
)

const (
	// ComponentID identifies this driver to hosts.
	ComponentID   = "4838e01b-4186-4d2d-a93a-414b9e9a49a7"
	ComponentName = "SoapUI test driver"
)

// Info describes the driver component.
type Info struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	Description   string `json:"description"`
	ProjectSuffix string `json:"projectSuffix"`
	Engine        string `json:"engine"`
}

func newInfo(version string, cfg config.DriverConfig) Info {
	if version == "" {
		version = "dev"
	}
	return Info{
		ID:            ComponentID,
		Name:          ComponentName,
		Version:       version,
		Description:   "Runs SOAP/WSDL test projects through an external test runner",
		ProjectSuffix: cfg.ProjectSuffix,
		Engine:        cfg.Engine.Command,
	}
}
