// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates configuration documents against embedded CUE
// schemas and decodes them into Go values.
//
// Every document goes through the same three steps:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify it with a schema definition
//  3. Validate and decode to a Go value
//
// JSON is a subset of CUE, so JSON project files go through the same path
// as .cue files.
//
// # Usage
//
//	//go:embed project_schema.cue
//	var schema []byte
//
//	result, err := cueutil.ReadAndDecode[Project](schema, "config.json", "#Project")
//	if err != nil {
//	    return nil, err // names the file and the offending field
//	}
//	return result.Value, nil
package cueutil
