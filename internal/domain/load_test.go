package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkit/internal/attr"
)

const greenhouseYAML = `
name: greenhouse-sim
scopes:
  - greenhouse
  - environment
templates:
  - name: Greenhouse
    attributes:
      - name: temperature
        default: 20
      - name: moisture
        default: 50
      - name: label
        default: "north wing"
`

func TestParse_Greenhouse(t *testing.T) {
	d, err := Parse([]byte(greenhouseYAML))
	require.NoError(t, err)

	assert.Equal(t, "greenhouse-sim", d.Name)
	assert.Equal(t, []string{"greenhouse", "environment"}, d.Scopes)

	tmpl, ok := d.Template("Greenhouse")
	require.True(t, ok)
	require.Len(t, tmpl.Attributes, 3)
	assert.Equal(t, "temperature", tmpl.Attributes[0].Name, "attribute order is declaration order")
	assert.Equal(t, attr.Int(20), tmpl.Attributes[0].Default)
	assert.Equal(t, attr.String("north wing"), tmpl.Attributes[2].Default)
}

func TestParse_FloatDefault(t *testing.T) {
	d, err := Parse([]byte(`
scopes: [lab]
templates:
  - name: Sensor
    attributes:
      - name: gain
        default: 0.25
`))
	require.NoError(t, err)
	tmpl, _ := d.Template("Sensor")
	spec, _ := tmpl.Attribute("gain")
	assert.Equal(t, attr.Float(0.25), spec.Default)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("scopes: [unclosed"))
	require.Error(t, err)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParse_SchemaViolation(t *testing.T) {
	// A mapping default is structurally invalid, caught by the schema.
	_, err := Parse([]byte(`
scopes: [lab]
templates:
  - name: Sensor
    attributes:
      - name: calibration
        default: {a: 1}
`))
	require.Error(t, err)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParse_EmptyScopeRejected(t *testing.T) {
	_, err := Parse([]byte(`
scopes: ["greenhouse", ""]
`))
	require.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(greenhouseYAML), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "greenhouse-sim", d.Name)
}

func TestLoad_DirectoryMergesSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-base.yaml"), []byte(`
name: estate
scopes: [greenhouse]
templates:
  - name: Greenhouse
    attributes:
      - name: temperature
        default: 20
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20-extra.yml"), []byte(`
scopes: [orchard]
templates:
  - name: Orchard
    attributes:
      - name: trees
        default: 40
`), 0o644))

	d, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "estate", d.Name, "first non-empty name wins")
	assert.True(t, d.HasScope("greenhouse"))
	assert.True(t, d.HasScope("orchard"))

	_, ok := d.Template("Orchard")
	assert.True(t, ok)
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_EmptyDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}
