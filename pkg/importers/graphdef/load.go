// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphdef

import (
	"io"
	"os"

	"github.com/gomlx/controlflow/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Parse reads a GraphDef serialized as YAML, e.g.:
//
//	format: tensorflow
//	nodes:
//	  - {name: x, op: Placeholder, attr: {dtype: {type: DT_FLOAT}}}
//	  - {name: enter, op: Enter, inputs: [x]}
func Parse(r io.Reader) (*GraphDef, error) {
	gd := &GraphDef{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(gd); err != nil {
		if errors.Is(err, io.EOF) {
			return gd, nil
		}
		return nil, errors.Wrap(err, "failed to parse graph")
	}
	switch gd.EffectiveFormat() {
	case FormatTensorflow, FormatONNX:
	default:
		return nil, errors.Errorf("unknown graph format %q", gd.Format)
	}
	for ii, node := range gd.Nodes {
		if node == nil || node.Name == "" {
			return nil, errors.Errorf("node #%d has no name", ii)
		}
		if node.Op == "" {
			return nil, errors.Errorf("node %q (#%d) has no op", node.Name, ii)
		}
	}
	return gd, nil
}

// Load reads the GraphDef from the YAML file in filePath. A leading "~" is replaced by the user's home directory.
func Load(filePath string) (*GraphDef, error) {
	filePath, err := fsutil.ExpandPath(filePath)
	if err != nil {
		return nil, err
	}
	exists, err := fsutil.FileExists(filePath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Errorf("graph file %q not found", filePath)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open graph file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	gd, err := Parse(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "while loading %q", filePath)
	}
	return gd, nil
}
