package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrImageNotFound is returned when an image name is not present in the
// selected image set.
var ErrImageNotFound = errors.New("image not found in set")

// Image is one named firmware image. Seek and Skip are optional dd-style
// positioning attributes in 512-byte blocks; zero means unset.
type Image struct {
	Name string
	Path string
	Seek int64
	Skip int64
}

// ImageSet is an ordered collection of named images. Order matters: the
// bootstrap strategies load "the first image", which is the first entry in
// the YAML mapping. Go maps would shuffle that, so the set decodes from
// the yaml.Node document directly.
type ImageSet struct {
	entries []Image
}

// NewImageSet builds a set from explicit entries, in the given order.
func NewImageSet(images ...Image) *ImageSet {
	return &ImageSet{entries: images}
}

// UnmarshalYAML decodes a mapping of name -> path or
// name -> {path, seek, skip}, preserving document order.
func (s *ImageSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("images: expected mapping, got %s", nodeKind(node))
	}
	s.entries = s.entries[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		img := Image{Name: keyNode.Value}
		switch valNode.Kind {
		case yaml.ScalarNode:
			if err := valNode.Decode(&img.Path); err != nil {
				return fmt.Errorf("image %q: %w", img.Name, err)
			}
		case yaml.MappingNode:
			var attrs struct {
				Path string `yaml:"path"`
				Seek int64  `yaml:"seek"`
				Skip int64  `yaml:"skip"`
			}
			if err := valNode.Decode(&attrs); err != nil {
				return fmt.Errorf("image %q: %w", img.Name, err)
			}
			if attrs.Path == "" {
				return fmt.Errorf("image %q: missing path", img.Name)
			}
			img.Path = attrs.Path
			img.Seek = attrs.Seek
			img.Skip = attrs.Skip
		default:
			return fmt.Errorf("image %q: expected path or mapping", img.Name)
		}
		s.entries = append(s.entries, img)
	}
	return nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "document"
	}
}

// Len returns the number of images in the set.
func (s *ImageSet) Len() int { return len(s.entries) }

// First returns the first image in document order.
func (s *ImageSet) First() (Image, error) {
	if len(s.entries) == 0 {
		return Image{}, ErrNoImages
	}
	return s.entries[0], nil
}

// Get returns the named image.
func (s *ImageSet) Get(name string) (Image, error) {
	for _, img := range s.entries {
		if img.Name == name {
			return img, nil
		}
	}
	return Image{}, fmt.Errorf("%w: %q", ErrImageNotFound, name)
}

// Names returns the image names in document order.
func (s *ImageSet) Names() []string {
	names := make([]string, len(s.entries))
	for i, img := range s.entries {
		names[i] = img.Name
	}
	return names
}

// Override replaces the path of an existing image. Overriding a name that
// is not in the set is an error, never a silent insert: a typo in an
// override must not grow the set.
func (s *ImageSet) Override(name, path string) error {
	for i, img := range s.entries {
		if img.Name == name {
			s.entries[i].Path = path
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrImageNotFound, name)
}
