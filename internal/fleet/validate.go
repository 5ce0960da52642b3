package fleet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/identity"
)

// Member is what a service instance declares about itself when it joins the
// fleet.
type Member struct {
	Identity       identity.Identity
	StatusPath     string
	DescriptorPath string
	// Schemas of the payloads the member serves, keyed by payload name.
	Schemas map[string]*jsonschema.Schema
}

// Validate checks members against conv and against each other. It collects
// every violation into one configuration error so a non-conforming service is
// rejected before it joins the fleet.
func Validate(conv Convention, members ...Member) error {
	if err := conv.Validate(); err != nil {
		return err
	}

	var problems []error
	names := make(map[string]string, len(members))
	slugs := make(map[string]string, len(members))

	for _, m := range members {
		name := m.Identity.Name()
		if m.Identity.IsZero() {
			problems = append(problems, errors.New("member without identity"))
			continue
		}
		if _, dup := names[name]; dup {
			problems = append(problems, fmt.Errorf("%s: name registered twice", name))
		}
		names[name] = name
		if other, dup := slugs[m.Identity.Slug()]; dup && other != name {
			problems = append(problems, fmt.Errorf("%s: path segment %q already used by %s", name, m.Identity.Slug(), other))
		}
		slugs[m.Identity.Slug()] = name

		if m.StatusPath != conv.StatusPath {
			problems = append(problems, fmt.Errorf("%s: status path %q, fleet uses %q", name, m.StatusPath, conv.StatusPath))
		}
		if want := conv.DescriptorPath(name); m.DescriptorPath != want {
			problems = append(problems, fmt.Errorf("%s: descriptor path %q, fleet template gives %q", name, m.DescriptorPath, want))
		}
	}

	problems = append(problems, compareSchemas(members)...)

	if len(problems) > 0 {
		return svcerrors.WrapConfiguration(errors.Join(problems...), "fleet convention violated")
	}
	return nil
}

// compareSchemas requires every member to publish the same payload names with
// structurally identical schemas.
func compareSchemas(members []Member) []error {
	if len(members) < 2 {
		return nil
	}
	ref := members[0]
	refEncoded, err := encodeSchemas(ref.Schemas)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", ref.Identity.Name(), err)}
	}

	var problems []error
	for _, m := range members[1:] {
		encoded, err := encodeSchemas(m.Schemas)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", m.Identity.Name(), err))
			continue
		}
		for _, key := range unionKeys(refEncoded, encoded) {
			a, okA := refEncoded[key]
			b, okB := encoded[key]
			switch {
			case !okA:
				problems = append(problems, fmt.Errorf("%s: publishes %s which %s does not", m.Identity.Name(), key, ref.Identity.Name()))
			case !okB:
				problems = append(problems, fmt.Errorf("%s: missing %s schema", m.Identity.Name(), key))
			case !bytes.Equal(a, b):
				problems = append(problems, fmt.Errorf("%s: %s schema differs from %s", m.Identity.Name(), key, ref.Identity.Name()))
			}
		}
	}
	return problems
}

func encodeSchemas(schemas map[string]*jsonschema.Schema) (map[string][]byte, error) {
	out := make(map[string][]byte, len(schemas))
	for name, s := range schemas {
		b, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("encode %s schema: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

func unionKeys(a, b map[string][]byte) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
