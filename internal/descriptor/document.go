package descriptor

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/internal/status"
)

const openAPIVersion = "3.0.3"

// Document is the machine-readable API description of one service.
type Document struct {
	OpenAPI    string                           `json:"openapi"`
	Info       DocumentInfo                     `json:"info"`
	Paths      map[string]map[string]PathMethod `json:"paths"`
	Components DocumentComponents               `json:"components"`
}

// DocumentInfo carries the title and version.
type DocumentInfo struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// PathMethod documents one method on one path.
type PathMethod struct {
	Summary   string              `json:"summary,omitempty"`
	Tags      []string            `json:"tags,omitempty"`
	Responses map[string]Response `json:"responses"`
}

// Response documents one response code.
type Response struct {
	Description string `json:"description"`
}

// DocumentComponents holds the shared schemas every fleet member publishes.
type DocumentComponents struct {
	Schemas map[string]*jsonschema.Schema `json:"schemas"`
}

// Reflect returns the JSON schema of v. Fleet tooling uses it to compare
// payload shapes across services.
func Reflect(v interface{}) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return reflector.Reflect(v)
}

// SharedSchemas returns the schemas of the payloads every instance serves.
func SharedSchemas() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"StatusResponse":       Reflect(&status.Response{}),
		"CapabilityDescriptor": Reflect(&CapabilityDescriptor{}),
	}
}

// BuildDocument renders the API document for d. Standard operations (status,
// describe) are listed under the "fleet" tag, service operations under the
// service slug. The result is encoded once; serve it with DocumentHandler.
func BuildDocument(d *Descriptor, standard []Operation) ([]byte, error) {
	id := d.Identity()
	doc := Document{
		OpenAPI: openAPIVersion,
		Info: DocumentInfo{
			Title:   id.Title(),
			Version: id.Version(),
		},
		Paths:      make(map[string]map[string]PathMethod),
		Components: DocumentComponents{Schemas: SharedSchemas()},
	}

	add := func(op Operation, tag string) {
		methods, ok := doc.Paths[op.Path]
		if !ok {
			methods = make(map[string]PathMethod)
			doc.Paths[op.Path] = methods
		}
		methods[strings.ToLower(string(op.Method))] = PathMethod{
			Summary: op.Summary,
			Tags:    []string{tag},
			Responses: map[string]Response{
				"200": {Description: "OK"},
			},
		}
	}

	for _, op := range standard {
		add(normalize(op), "fleet")
	}
	for _, op := range d.ops {
		add(op, id.Slug())
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, svcerrors.WrapConfiguration(err, "encode API document")
	}
	return encoded, nil
}

// DocumentHandler serves a pre-encoded API document.
func DocumentHandler(encoded []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteRawJSON(w, http.StatusOK, encoded)
	}
}
