package config

import (
	"bytes"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// ValidationError is a schema violation with its location in the file.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path, e.g. "http.max_retries".
	Path string `json:"path,omitempty"`

	// Message describes the violation.
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// SchemaError collects every violation found in one document.
type SchemaError struct {
	Errors []ValidationError
}

func (e *SchemaError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// configSchema is the shape of trinity.yaml. Definitions are closed, so
// unknown keys are rejected at every level.
const configSchema = `
#Duration: string & =~"^([0-9]+(ns|us|ms|s|m|h))+$"

#Config: {
	neon?: {
		api_key?:   string
		base_url?:  string
		region_id?: string
		database?:  string
		role?:      string
	}
	railway?: {
		token?:       string
		base_url?:    string
		environment?: string
		team_id?:     string
	}
	vercel?: {
		token?:    string
		base_url?: string
		team_id?:  string
	}
	git?: {
		token?:         string
		clone_timeout?: #Duration
	}
	http?: {
		timeout?:     #Duration
		max_retries?: int & >=0 & <=10
	}
	ledger?: {
		path?: string
	}
	policy?: {
		paths?:    [...string]
		disabled?: [...string]
		watch?:    bool
	}
	server?: {
		addr?:               string
		heartbeat_interval?: #Duration
		shutdown_timeout?:   #Duration
	}
	telemetry?: {
		service_name?:    string
		service_version?: string
		environment?:     string
		logging?: {
			level?:         "trace" | "debug" | "info" | "warn" | "error" | "fatal"
			format?:        "console" | "json"
			output?:        string
			enable_caller?: bool
			time_format?:   string
		}
		tracing?: {
			enabled?:               bool
			exporter?:              "otlp" | "stdout" | "none"
			endpoint?:              string
			sampling_rate?:         number & >=0 & <=1
			max_export_batch_size?: int & >0
			export_timeout?:        #Duration
			headers?: [string]: string
			insecure?: bool
		}
		metrics?: {
			enabled?:           bool
			path?:              string
			namespace?:         string
			histogram_buckets?: [...number]
		}
	}
}
`

// Schema validates configuration documents against the CUE definition of
// trinity.yaml.
type Schema struct {
	ctx    *cue.Context
	config cue.Value
}

// NewSchema compiles the configuration schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(configSchema, cue.Filename("trinity.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	def := val.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("failed to look up #Config: %w", err)
	}

	return &Schema{ctx: ctx, config: def}, nil
}

// ValidateYAML checks a YAML document. Violations are returned as a
// *SchemaError carrying positions in filename.
func (s *Schema) ValidateYAML(filename string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return &SchemaError{Errors: convertCUEErrors(err, filename)}
	}

	doc := s.ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return &SchemaError{Errors: convertCUEErrors(err, filename)}
	}

	if err := s.config.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Errors: convertCUEErrors(err, filename)}
	}
	return nil
}

// convertCUEErrors flattens a CUE error list, preferring positions that
// point into filename over positions in the schema itself.
func convertCUEErrors(err error, filename string) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: errors.Details(e, nil),
		}

		positions := errors.Positions(e)
		for i, pos := range positions {
			if i == 0 || pos.Filename() == filename {
				ve.File = pos.Filename()
				ve.Line = pos.Line()
				ve.Column = pos.Column()
			}
			if pos.Filename() == filename {
				break
			}
		}

		out = append(out, ve)
	}
	return out
}
