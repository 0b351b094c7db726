// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rulesource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var structValidator = validator.New()

// Decode parses raw rule-source bytes as JSON or YAML (selected by a
// ".json"/".yaml"/".yml" extension hint) into a slice of RuleDocs and
// runs struct-tag validation (required fields). Semantic validation
// (operator and value-shape checks) is a separate pass in Validate,
// since it needs the parsed Condition.Value decoded per-operator.
func Decode(data []byte, extHint string) ([]RuleDoc, error) {
	var err error
	switch strings.ToLower(extHint) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("rulesource: decode: %w", err)
		}
	}

	var docs []RuleDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("rulesource: decode: %w", err)
	}

	for i := range docs {
		if verr := structValidator.Struct(&docs[i]); verr != nil {
			return nil, fmt.Errorf("rulesource: struct validation failed for rule %d (%s): %w", i, docs[i].RuleCode, verr)
		}
	}
	return docs, nil
}

// yamlToJSON decodes a YAML document generically and re-marshals it as
// JSON, so Decode's single JSON path handles both source formats and
// every Condition.Value ends up as the same json.RawMessage shape.
// Decoding YAML straight into RuleDoc would not work: yaml.v3 cannot
// populate the json.RawMessage value fields from arbitrary YAML nodes.
func yamlToJSON(data []byte) ([]byte, error) {
	var generic []map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Source abstracts the external rule store the model manager watches.
// Rule authoring, persistence, and serving live elsewhere; Source is the
// narrow contract this engine needs from whatever implements them.
type Source interface {
	// Load returns the current full set of rule documents.
	Load(ctx context.Context) ([]RuleDoc, error)
	// Token returns an opaque, comparable string that changes whenever
	// Load's result would change (a last-modified time or content hash).
	// The Model Manager polls Token at its configured interval and only
	// calls Load (and recompiles) when the token changes.
	Token(ctx context.Context) (string, error)
}

// FileSource is a Source backed by a single JSON or YAML file on disk.
// Token is the file's modification time combined with its size, which is
// cheap to stat and changes on any meaningful edit without needing to
// read and hash the whole file every poll interval.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Load(_ context.Context) ([]RuleDoc, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("rulesource: read %s: %w", f.Path, err)
	}
	return Decode(data, filepath.Ext(f.Path))
}

func (f *FileSource) Token(_ context.Context) (string, error) {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return "", fmt.Errorf("rulesource: stat %s: %w", f.Path, err)
	}
	return strconv.FormatInt(fi.ModTime().UnixNano(), 10) + ":" + strconv.FormatInt(fi.Size(), 10), nil
}
