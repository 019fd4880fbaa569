package domain

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// domainSchema constrains the shape of a domain document before any
// semantic validation runs. Defaults are limited to scalars here; the
// uniqueness rules live in New, which has better error positions for them.
const domainSchema = `
#Attribute: {
	name:    string & !=""
	default: string | number | bool
}

#Template: {
	name:       string & !=""
	attributes: [...#Attribute]
}

#Domain: {
	name?:      string
	scopes:     [...string & !=""]
	templates?: [...#Template]
}
`

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
)

func compiledSchema() cue.Value {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaVal = schemaCtx.CompileString(domainSchema).LookupPath(cue.ParsePath("#Domain"))
	})
	return schemaVal
}

// validateSchema unifies a decoded domain document with the embedded
// schema definition and reports the first constraint violation.
func validateSchema(doc *domainDoc) error {
	schema := compiledSchema()
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile domain schema: %w", err)
	}

	val := schemaCtx.Encode(doc)
	if err := val.Err(); err != nil {
		return &ValidationError{Message: fmt.Sprintf("encode domain document: %v", err)}
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return &ValidationError{Message: cueerrors.Details(err, nil)}
	}
	return nil
}
