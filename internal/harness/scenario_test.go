package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/greenhouse_day.yaml")
	require.NoError(t, err)

	assert.Equal(t, "greenhouse_day", s.Name)
	assert.Equal(t, "greenhouse-day-1", s.RunToken)
	assert.Len(t, s.Instances, 1)
	assert.Len(t, s.Handlers, 3)
	assert.Len(t, s.Events, 3)
	assert.Len(t, s.Assertions, 5)
	require.NotNil(t, s.Run.Until)
	assert.Equal(t, 30.0, *s.Run.Until)

	// Domain path resolved relative to the scenario file.
	assert.Equal(t, filepath.Join("testdata", "greenhouse.yaml"), s.Domain)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does_not_exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()

	// A minimal valid domain next to the scenario file.
	domainYAML := "name: d\nscopes: [s]\ntemplates:\n  - name: T\n    attributes:\n      - name: a\n        default: 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "domain.yaml"), []byte(domainYAML), 0o644))

	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "catches assertion vs assertions"
domain: domain.yaml
events:
  - at: 0
    kind: tick
assertion:
  - type: now_equals
    value: 0
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
domain: domain.yaml
events:
  - at: 0
    kind: tick
`,
			wantErr: "name is required",
		},
		{
			name: "missing events",
			content: `
name: s
description: "x"
domain: domain.yaml
events: []
`,
			wantErr: "events list is required",
		},
		{
			name: "negative event time",
			content: `
name: s
description: "x"
domain: domain.yaml
events:
  - at: -1
    kind: tick
`,
			wantErr: "at must be a non-negative finite number",
		},
		{
			name: "nan event time",
			content: `
name: s
description: "x"
domain: domain.yaml
events:
  - at: .nan
    kind: tick
`,
			wantErr: "at must be a non-negative finite number",
		},
		{
			name: "infinite event time",
			content: `
name: s
description: "x"
domain: domain.yaml
events:
  - at: .inf
    kind: tick
`,
			wantErr: "at must be a non-negative finite number",
		},
		{
			name: "unknown op",
			content: `
name: s
description: "x"
domain: domain.yaml
handlers:
  - kind: tick
    op: clamp
    scope: s
    instance: i
    property: a
events:
  - at: 0
    kind: tick
`,
			wantErr: `unknown op "clamp"`,
		},
		{
			name: "every without repeat",
			content: `
name: s
description: "x"
domain: domain.yaml
handlers:
  - kind: tick
    op: add
    scope: s
    instance: i
    property: a
    every: 10
events:
  - at: 0
    kind: tick
`,
			wantErr: "repeat is required with every",
		},
		{
			name: "nan every",
			content: `
name: s
description: "x"
domain: domain.yaml
handlers:
  - kind: tick
    op: add
    scope: s
    instance: i
    property: a
    every: .nan
    repeat: 3
events:
  - at: 0
    kind: tick
`,
			wantErr: "every must be positive and finite",
		},
		{
			name: "nan until",
			content: `
name: s
description: "x"
domain: domain.yaml
events:
  - at: 0
    kind: tick
run:
  until: .nan
`,
			wantErr: "run.until must be a non-negative finite number",
		},
		{
			name: "unknown assertion type",
			content: `
name: s
description: "x"
domain: domain.yaml
events:
  - at: 0
    kind: tick
assertions:
  - type: state_matches
`,
			wantErr: `unknown assertion type "state_matches"`,
		},
		{
			name: "bad on_error",
			content: `
name: s
description: "x"
domain: domain.yaml
events:
  - at: 0
    kind: tick
run:
  on_error: panic
`,
			wantErr: "run.on_error must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_DomainNotFound(t *testing.T) {
	path := writeScenario(t, `
name: s
description: "x"
domain: missing.yaml
events:
  - at: 0
    kind: tick
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain path not found")
}
