package project

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/giantswarm/suidriver/internal/api"
)

// DefaultSuffix is the file name suffix of project files.
const DefaultSuffix = "-soapui-project.xml"

// ErrNotAProject is returned when a document is well-formed XML but not a project.
var ErrNotAProject = errors.New("document is not a test project")

// Project is the metadata of a project file.
type Project struct {
	ID          string
	Name        string
	Description string
	Properties  api.ParameterSet
	Suites      []Suite
}

// Suite is a test suite outline.
type Suite struct {
	ID       string
	Name     string
	Disabled bool
	Cases    []Case
}

// Case is a test case outline.
type Case struct {
	ID       string
	Name     string
	Disabled bool
	Steps    []Step
}

// Step is a test step outline.
type Step struct {
	ID       string
	Name     string
	Type     string
	Disabled bool
}

type xmlProperty struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

type xmlStep struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	Type     string `xml:"type,attr"`
	Disabled bool   `xml:"disabled,attr"`
}

type xmlCase struct {
	ID       string    `xml:"id,attr"`
	Name     string    `xml:"name,attr"`
	Disabled bool      `xml:"disabled,attr"`
	Steps    []xmlStep `xml:"testStep"`
}

type xmlSuite struct {
	ID       string    `xml:"id,attr"`
	Name     string    `xml:"name,attr"`
	Disabled bool      `xml:"disabled,attr"`
	Cases    []xmlCase `xml:"testCase"`
}

type xmlProject struct {
	XMLName     xml.Name      `xml:"soapui-project"`
	ID          string        `xml:"id,attr"`
	Name        string        `xml:"name,attr"`
	Description string        `xml:"description"`
	Properties  []xmlProperty `xml:"properties>property"`
	Suites      []xmlSuite    `xml:"testSuite"`
}

// Load reads the project file at path.
func Load(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes project metadata from r.
func Parse(r io.Reader) (*Project, error) {
	var doc xmlProject
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		var unexpected xml.UnmarshalError
		if errors.As(err, &unexpected) && strings.Contains(string(unexpected), "expected element type <soapui-project>") {
			return nil, ErrNotAProject
		}
		return nil, fmt.Errorf("malformed project document: %w", err)
	}

	p := &Project{
		ID:          strings.TrimSpace(doc.ID),
		Name:        strings.TrimSpace(doc.Name),
		Description: strings.TrimSpace(doc.Description),
	}
	for _, prop := range doc.Properties {
		p.Properties.Set(strings.TrimSpace(prop.Name), prop.Value)
	}
	for _, s := range doc.Suites {
		suite := Suite{ID: s.ID, Name: s.Name, Disabled: s.Disabled}
		for _, c := range s.Cases {
			tc := Case{ID: c.ID, Name: c.Name, Disabled: c.Disabled}
			for _, st := range c.Steps {
				tc.Steps = append(tc.Steps, Step(st))
			}
			suite.Cases = append(suite.Cases, tc)
		}
		p.Suites = append(p.Suites, suite)
	}
	return p, nil
}

// Property returns the trimmed value of a project property.
func (p *Project) Property(name string) string {
	v, _ := p.Properties.Get(name)
	return strings.TrimSpace(v)
}

// Suite returns the suite with the given name.
func (p *Project) Suite(name string) (*Suite, bool) {
	for i := range p.Suites {
		if p.Suites[i].Name == name {
			return &p.Suites[i], true
		}
	}
	return nil, false
}

// CaseCount returns the number of enabled cases in enabled suites.
func (p *Project) CaseCount() int {
	n := 0
	for _, s := range p.Suites {
		if s.Disabled {
			continue
		}
		for _, c := range s.Cases {
			if !c.Disabled {
				n++
			}
		}
	}
	return n
}

// StepCount returns the number of enabled steps in enabled cases.
func (p *Project) StepCount() int {
	n := 0
	for _, s := range p.Suites {
		if s.Disabled {
			continue
		}
		n += s.StepCount()
	}
	return n
}

// StepCount returns the number of enabled steps in enabled cases of the suite.
func (s *Suite) StepCount() int {
	n := 0
	for _, c := range s.Cases {
		if c.Disabled {
			continue
		}
		n += c.StepCount()
	}
	return n
}

// StepCount returns the number of enabled steps of the case.
func (c *Case) StepCount() int {
	n := 0
	for _, st := range c.Steps {
		if !st.Disabled {
			n++
		}
	}
	return n
}
