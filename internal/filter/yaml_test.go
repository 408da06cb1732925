package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libroscan/catalog-cli/internal/model"
)

const sampleDefinition = `
site: kyobo
filters:
  - name: domestic-novels
    operator: AND
    children:
      - name: title-prefix
        property: title
        regex: "^Book"
      - name: publisher
        property: publisherText
        regex: "Acme"
  - name: direct-isbn
    property: isbn
    regex: "^97911"
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)
	assert.Equal(t, model.SiteKyobo, def.Site)
	assert.Len(t, def.Filters, 2)
}

func TestParseDefinition_MissingSite(t *testing.T) {
	_, err := ParseDefinition([]byte("filters:\n  - name: x\n    property: title\n    regex: a\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing site")
}

func TestParseDefinition_NoFilters(t *testing.T) {
	_, err := ParseDefinition([]byte("site: KYOBO\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no filters")
}

func TestDefinition_RowsExpressParentLinks(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)

	rows := def.Rows()
	require.Len(t, rows, 4)

	assert.True(t, rows[0].IsRoot)
	assert.Equal(t, "AND", rows[0].Operator)
	require.NotNil(t, rows[1].ParentID)
	assert.Equal(t, rows[0].ID, *rows[1].ParentID)
	require.NotNil(t, rows[2].ParentID)
	assert.Equal(t, rows[0].ID, *rows[2].ParentID)
	assert.True(t, rows[3].IsRoot)
	assert.Nil(t, rows[3].ParentID)
}

func TestDefinition_ValidateCatchesBadForest(t *testing.T) {
	def, err := ParseDefinition([]byte(`
site: KYOBO
filters:
  - name: broken
    operator: NOT
    children:
      - name: a
        property: title
        regex: x
      - name: b
        property: title
        regex: y
`))
	require.NoError(t, err)

	err = def.Validate(Options{})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestDefinition_ValidateAcceptsGoodForest(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)
	assert.NoError(t, def.Validate(Options{}))
}
