// Package assets carries data files compiled into the binaries.
package assets

import _ "embed"

// Questions is the bundled general question pool, shaped
// {"letter": [["question", "answer"], ...]}.
//
//go:embed questions.json
var Questions []byte
