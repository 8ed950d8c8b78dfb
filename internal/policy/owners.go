package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// owners is the content of an OWNERS file.
// Reviewers are either a list of users or a mapping with the keys any,
// files and folders.
type owners struct {
	Approvers []string  `yaml:"approvers"`
	Reviewers reviewers `yaml:"reviewers"`
}

type reviewers struct {
	Any     []string            `yaml:"any"`
	Files   map[string][]string `yaml:"files"`
	Folders map[string][]string `yaml:"folders"`
}

func (r *reviewers) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		return value.Decode(&r.Any)
	}

	type plain reviewers
	var result plain

	if err := value.Decode(&result); err != nil {
		return err
	}

	*r = reviewers(result)

	return nil
}

func parseOwners(data []byte) (*owners, error) {
	var result owners

	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing owners file failed: %w", err)
	}

	return &result, nil
}
