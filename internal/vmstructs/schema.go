// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmstructs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// schemaFile is the on-disk form of a DB. JSON files are read too,
// JSON being a subset of YAML.
type schemaFile struct {
	Types     []Type           `yaml:"types"`
	Fields    []Field          `yaml:"fields"`
	Constants map[string]int64 `yaml:"constants,omitempty"`
}

// Parse reads a DB from a YAML or JSON schema.
func Parse(data []byte) (*DB, error) {
	var s schemaFile
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if len(s.Types) == 0 && len(s.Fields) == 0 {
		return nil, fmt.Errorf("schema has no types")
	}
	db, err := New(s.Types, s.Fields, s.Constants)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return db, nil
}

// Load reads a DB from the schema file at path.
func Load(path string) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	db, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return db, nil
}

// Marshal encodes db as a YAML schema that Parse accepts.
// Output is sorted so that schemas of the same VM build compare equal.
func (db *DB) Marshal() ([]byte, error) {
	s := schemaFile{Types: db.Types()}
	for _, t := range s.Types {
		fs, _ := db.Fields(t.Name)
		s.Fields = append(s.Fields, fs...)
	}
	if len(db.constants) > 0 {
		s.Constants = make(map[string]int64, len(db.constants))
		for k, v := range db.constants {
			s.Constants[k] = v
		}
	}
	return yaml.Marshal(&s)
}
