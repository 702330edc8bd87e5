package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conduit-ai/conduit/internal/message"
)

// tagsFile is the YAML shape of a custom tag-set file.
type tagsFile struct {
	Tags []message.TagSpec `yaml:"tags"`
}

// LoadTagSpecs reads a YAML tag-set file declaring which tag pairs open
// which block kinds. An empty path returns nil, which selects the built-in
// tag set.
func LoadTagSpecs(path string) ([]message.TagSpec, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tags file: %w", err)
	}

	var file tagsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tags file: %w", err)
	}

	for i, spec := range file.Tags {
		if spec.StartTag == "" {
			return nil, fmt.Errorf("tags file: entry %d has no start_tag", i)
		}
		if spec.EndTag == "" {
			file.Tags[i].EndTag = spec.StartTag
		}
		switch spec.Kind {
		case message.KindReasoning, message.KindCodeInterpreter, message.KindSolution:
		default:
			return nil, fmt.Errorf("tags file: entry %d has unknown kind %q", i, spec.Kind)
		}
	}

	return file.Tags, nil
}
