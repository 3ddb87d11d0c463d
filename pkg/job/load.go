package job

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Parse decodes a descriptor from YAML or JSON. Unknown fields are rejected so that a
// misspelled resource request is not silently dropped.
func Parse(data []byte) (JobDescriptor, error) {
	var d JobDescriptor
	if err := yaml.UnmarshalStrict(data, &d); err != nil {
		return JobDescriptor{}, errors.Wrap(err, "failed to parse job descriptor")
	}
	return d, nil
}

// Load reads a descriptor file.
func Load(path string) (JobDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobDescriptor{}, errors.Wrapf(err, "failed opening file %s", path)
	}
	d, err := Parse(data)
	if err != nil {
		return JobDescriptor{}, errors.WithMessagef(err, "file %s", path)
	}
	return d, nil
}
