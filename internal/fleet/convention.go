// Package fleet holds the rules every service instance follows so that
// orchestrators, gateways and monitors can treat all of them the same way,
// and the tooling that checks those rules before and after deployment.
package fleet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopfleet/service_layer/internal/descriptor"
	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/identity"
)

const (
	// ServicePlaceholder is replaced by the service slug in path templates.
	ServicePlaceholder = "{service}"
	// VersionPlaceholder is replaced by the service version in path templates.
	VersionPlaceholder = "{version}"
)

// Convention is the process-wide, read-only set of endpoint placement rules.
type Convention struct {
	StatusPath             string `yaml:"status_path"`
	DescriptorPathTemplate string `yaml:"descriptor_path_template"`
	InfoPathTemplate       string `yaml:"info_path_template"`
	DocsPathTemplate       string `yaml:"docs_path_template"`
	MetricsPath            string `yaml:"metrics_path"`
	OperationPrefix        string `yaml:"operation_prefix"`
}

// DefaultConvention is the convention every service in this repository uses.
func DefaultConvention() Convention {
	return Convention{
		StatusPath:             "/api/health",
		DescriptorPathTemplate: "/api/" + ServicePlaceholder + "/describe",
		InfoPathTemplate:       "/api/" + ServicePlaceholder + "/info",
		DocsPathTemplate:       "/swagger/" + VersionPlaceholder + "/swagger.json",
		MetricsPath:            "/metrics",
		OperationPrefix:        "/",
	}
}

// WithDefaults fills empty fields from DefaultConvention.
func (c Convention) WithDefaults() Convention {
	d := DefaultConvention()
	if c.StatusPath == "" {
		c.StatusPath = d.StatusPath
	}
	if c.DescriptorPathTemplate == "" {
		c.DescriptorPathTemplate = d.DescriptorPathTemplate
	}
	if c.InfoPathTemplate == "" {
		c.InfoPathTemplate = d.InfoPathTemplate
	}
	if c.DocsPathTemplate == "" {
		c.DocsPathTemplate = d.DocsPathTemplate
	}
	if c.MetricsPath == "" {
		c.MetricsPath = d.MetricsPath
	}
	if c.OperationPrefix == "" {
		c.OperationPrefix = d.OperationPrefix
	}
	return c
}

// Validate checks the convention itself.
func (c Convention) Validate() error {
	var problems []error
	check := func(field, path string) {
		if !strings.HasPrefix(path, "/") {
			problems = append(problems, fmt.Errorf("%s %q must start with /", field, path))
		}
	}
	check("status path", c.StatusPath)
	check("descriptor path template", c.DescriptorPathTemplate)
	check("info path template", c.InfoPathTemplate)
	check("docs path template", c.DocsPathTemplate)
	check("metrics path", c.MetricsPath)
	check("operation prefix", c.OperationPrefix)

	if strings.Contains(c.StatusPath, ServicePlaceholder) || strings.Contains(c.StatusPath, VersionPlaceholder) {
		problems = append(problems, fmt.Errorf("status path %q must be identical for every service", c.StatusPath))
	}
	if strings.Count(c.DescriptorPathTemplate, ServicePlaceholder) != 1 {
		problems = append(problems, fmt.Errorf("descriptor path template %q must contain %s exactly once", c.DescriptorPathTemplate, ServicePlaceholder))
	}
	if strings.Contains(c.DescriptorPathTemplate, VersionPlaceholder) {
		problems = append(problems, fmt.Errorf("descriptor path template %q may only be parameterised by service", c.DescriptorPathTemplate))
	}
	if strings.Count(c.InfoPathTemplate, ServicePlaceholder) != 1 {
		problems = append(problems, fmt.Errorf("info path template %q must contain %s exactly once", c.InfoPathTemplate, ServicePlaceholder))
	}

	if len(problems) > 0 {
		return svcerrors.WrapConfiguration(errors.Join(problems...), "invalid fleet convention")
	}
	return nil
}

// DescriptorPath renders the descriptor path for a service name.
func (c Convention) DescriptorPath(name string) string {
	return strings.ReplaceAll(c.DescriptorPathTemplate, ServicePlaceholder, identity.SlugFor(name))
}

// InfoPath renders the info path for a service name.
func (c Convention) InfoPath(name string) string {
	return strings.ReplaceAll(c.InfoPathTemplate, ServicePlaceholder, identity.SlugFor(name))
}

// DocsPath renders the API document path for an identity.
func (c Convention) DocsPath(id identity.Identity) string {
	path := strings.ReplaceAll(c.DocsPathTemplate, VersionPlaceholder, id.Version())
	return strings.ReplaceAll(path, ServicePlaceholder, id.Slug())
}

// Standard returns the fleet-owned operations of an instance: status and
// describe, the two every member must answer.
func (c Convention) Standard(id identity.Identity) []descriptor.Operation {
	return []descriptor.Operation{
		{Method: descriptor.MethodGet, Path: c.StatusPath, Summary: "Liveness status"},
		{Method: descriptor.MethodGet, Path: c.DescriptorPath(id.Name()), Summary: "Capability descriptor"},
	}
}

// Reserved returns every route the fleet owns on an instance. Service
// operations may not shadow any of them.
func (c Convention) Reserved(id identity.Identity) []descriptor.Operation {
	return append(c.Standard(id),
		descriptor.Operation{Method: descriptor.MethodGet, Path: c.InfoPath(id.Name()), Summary: "Instance information"},
		descriptor.Operation{Method: descriptor.MethodGet, Path: c.DocsPath(id), Summary: "API document"},
		descriptor.Operation{Method: descriptor.MethodGet, Path: c.MetricsPath, Summary: "Prometheus metrics"},
	)
}
