package models

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/models/model"
)

// Manifest lists the models a registry is built from.
//
// ```yaml
//
//	models:
//	  - name: ssd-mobilenet
//	    family: packed
//	    path: ssd_mobilenet_v2.onnx
//	    labels: tf-coco
//	  - name: nudenet
//	    family: anchor-free
//	    path: nudenet.onnx
//	    strides: [1, 2, 4]
//	    scale_box: 1.5
//	    input_size: 416
//	    labels: nudity
//
// ```
type Manifest struct {
	Models []model.Config `json:"models" yaml:"models"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "unable to decode manifest")
	}
	return &m, nil
}

// LoadManifest reads a YAML manifest from a file. Relative model and label
// file paths are resolved against the manifest directory.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open manifest")
	}
	defer f.Close()

	m, err := ParseManifest(f)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", path)
	}

	dir := filepath.Dir(path)
	for i := range m.Models {
		cfg := &m.Models[i]
		if cfg.Path != "" && !filepath.IsAbs(cfg.Path) {
			cfg.Path = filepath.Join(dir, cfg.Path)
		}
		if cfg.Labels != "" && !isLabelSet(cfg.Labels) && !filepath.IsAbs(cfg.Labels) {
			cfg.Labels = filepath.Join(dir, cfg.Labels)
		}
	}

	return m, nil
}

// NewRegistryFromManifest registers every model of a manifest.
func NewRegistryFromManifest(m *Manifest) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range m.Models {
		if _, err := r.Register(cfg); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func isLabelSet(s string) bool {
	for _, set := range LabelSets {
		if LabelSet(s) == set {
			return true
		}
	}
	return false
}
