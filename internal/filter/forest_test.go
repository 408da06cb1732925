package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libroscan/catalog-cli/internal/model"
)

func ptr(v int64) *int64 { return &v }

func leafRow(id int64, site model.Site, property, regex string, parent *int64) model.OriginFilter {
	return model.OriginFilter{
		ID: id, Name: "leaf", Site: site,
		IsRoot: parent == nil, PropertyName: property, Regex: regex, ParentID: parent,
	}
}

func combRow(id int64, site model.Site, op string, parent *int64) model.OriginFilter {
	return model.OriginFilter{
		ID: id, Name: "comb", Site: site,
		IsRoot: parent == nil, Operator: op, ParentID: parent,
	}
}

// AND root with a title prefix leaf and a publisher leaf.
func acmeForest(t *testing.T, opts Options) *Forest {
	t.Helper()
	rows := []model.OriginFilter{
		combRow(1, model.SiteKyobo, "AND", nil),
		leafRow(2, model.SiteKyobo, model.PropertyTitle, "^Book", ptr(1)),
		leafRow(3, model.SiteKyobo, model.PropertyPublisherText, "Acme", ptr(1)),
	}
	f, err := Build(model.SiteKyobo, rows, opts)
	require.NoError(t, err)
	return f
}

func TestBuild_AndRootAdmitsMatchingRecord(t *testing.T) {
	f := acmeForest(t, Options{})

	d := f.Evaluate(map[string]string{
		model.PropertyTitle:         "Book One",
		model.PropertyPublisherText: "Acme Press",
	})
	assert.True(t, d.Admitted)
	assert.ElementsMatch(t, []int64{2, 3}, d.MatchedLeaves)
}

func TestBuild_AndRootRejectsPartialMatch(t *testing.T) {
	f := acmeForest(t, Options{})

	d := f.Evaluate(map[string]string{
		model.PropertyTitle:         "Other",
		model.PropertyPublisherText: "Acme Press",
	})
	assert.False(t, d.Admitted)
	// The publisher leaf still matched; diagnostics keep it.
	assert.Equal(t, []int64{3}, d.MatchedLeaves)
}

func TestEvaluate_MissingPropertyFailsLeaf(t *testing.T) {
	f := acmeForest(t, Options{})

	d := f.Evaluate(map[string]string{model.PropertyTitle: "Book One"})
	assert.False(t, d.Admitted)
}

func TestEvaluate_MultipleRootsAreORed(t *testing.T) {
	rows := []model.OriginFilter{
		leafRow(1, model.SiteNaver, model.PropertyTitle, "^Never", nil),
		leafRow(2, model.SiteNaver, model.PropertyPublisherText, "Acme", nil),
	}
	f, err := Build(model.SiteNaver, rows, Options{})
	require.NoError(t, err)

	d := f.Evaluate(map[string]string{
		model.PropertyTitle:         "Something Else",
		model.PropertyPublisherText: "Acme Press",
	})
	assert.True(t, d.Admitted)
	assert.Equal(t, []int64{2}, d.MatchedLeaves)
}

func TestEvaluate_NotInvertsChild(t *testing.T) {
	rows := []model.OriginFilter{
		combRow(1, model.SiteKyobo, "NOT", nil),
		leafRow(2, model.SiteKyobo, model.PropertyTitle, "Banned", ptr(1)),
	}
	f, err := Build(model.SiteKyobo, rows, Options{})
	require.NoError(t, err)

	assert.True(t, f.Evaluate(map[string]string{model.PropertyTitle: "Fine"}).Admitted)
	assert.False(t, f.Evaluate(map[string]string{model.PropertyTitle: "Banned Book"}).Admitted)
}

func TestEvaluate_NorAndNand(t *testing.T) {
	rows := []model.OriginFilter{
		combRow(1, model.SiteKyobo, "NOR", nil),
		leafRow(2, model.SiteKyobo, model.PropertyTitle, "A", ptr(1)),
		leafRow(3, model.SiteKyobo, model.PropertyTitle, "B", ptr(1)),
	}
	f, err := Build(model.SiteKyobo, rows, Options{})
	require.NoError(t, err)

	assert.True(t, f.Evaluate(map[string]string{model.PropertyTitle: "zzz"}).Admitted)
	assert.False(t, f.Evaluate(map[string]string{model.PropertyTitle: "zAz"}).Admitted)

	rows = []model.OriginFilter{
		combRow(1, model.SiteKyobo, "NAND", nil),
		leafRow(2, model.SiteKyobo, model.PropertyTitle, "A", ptr(1)),
		leafRow(3, model.SiteKyobo, model.PropertyTitle, "B", ptr(1)),
	}
	f, err = Build(model.SiteKyobo, rows, Options{})
	require.NoError(t, err)

	assert.False(t, f.Evaluate(map[string]string{model.PropertyTitle: "AB"}).Admitted)
	assert.True(t, f.Evaluate(map[string]string{model.PropertyTitle: "A"}).Admitted)
}

func TestBuild_FullMatchAnchorsRegex(t *testing.T) {
	rows := []model.OriginFilter{
		leafRow(1, model.SiteKyobo, model.PropertyTitle, "Book", nil),
	}

	partial, err := Build(model.SiteKyobo, rows, Options{})
	require.NoError(t, err)
	assert.True(t, partial.Evaluate(map[string]string{model.PropertyTitle: "My Book Two"}).Admitted)

	full, err := Build(model.SiteKyobo, rows, Options{FullMatch: true})
	require.NoError(t, err)
	assert.False(t, full.Evaluate(map[string]string{model.PropertyTitle: "My Book Two"}).Admitted)
	assert.True(t, full.Evaluate(map[string]string{model.PropertyTitle: "Book"}).Admitted)
}

func TestBuild_CycleIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		{ID: 1, Name: "a", Site: model.SiteKyobo, Operator: "AND", ParentID: ptr(2)},
		{ID: 2, Name: "b", Site: model.SiteKyobo, Operator: "AND", ParentID: ptr(1)},
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuild_OrphanParentIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		leafRow(1, model.SiteKyobo, model.PropertyTitle, "x", ptr(99)),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.Contains(t, err.Error(), "parent does not exist")
}

func TestBuild_RootWithParentIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		combRow(1, model.SiteKyobo, "AND", nil),
		{ID: 2, Name: "bad-root", Site: model.SiteKyobo, IsRoot: true, PropertyName: model.PropertyTitle, Regex: "x", ParentID: ptr(1)},
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestBuild_UnknownOperatorIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		combRow(1, model.SiteKyobo, "XOR", nil),
		leafRow(2, model.SiteKyobo, model.PropertyTitle, "x", ptr(1)),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestBuild_CombinatorWithoutChildrenIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		combRow(1, model.SiteKyobo, "AND", nil),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no children")
}

func TestBuild_NotRequiresSingleChild(t *testing.T) {
	rows := []model.OriginFilter{
		combRow(1, model.SiteKyobo, "NOT", nil),
		leafRow(2, model.SiteKyobo, model.PropertyTitle, "a", ptr(1)),
		leafRow(3, model.SiteKyobo, model.PropertyTitle, "b", ptr(1)),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT requires exactly one child")
}

func TestBuild_InvalidRegexIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		leafRow(1, model.SiteKyobo, model.PropertyTitle, "(", nil),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid regex")
}

func TestBuild_LeafWithChildrenIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		leafRow(1, model.SiteKyobo, model.PropertyTitle, "x", nil),
		leafRow(2, model.SiteKyobo, model.PropertyTitle, "y", ptr(1)),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leaf node has children")
}

func TestBuild_CombinatorWithLeafFieldsIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		{ID: 1, Name: "both", Site: model.SiteKyobo, IsRoot: true, Operator: "AND", Regex: "x"},
		leafRow(2, model.SiteKyobo, model.PropertyTitle, "y", ptr(1)),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leaf fields")
}

func TestBuild_NodeWithNeitherKindIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		{ID: 1, Name: "empty", Site: model.SiteKyobo, IsRoot: true},
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither combinator nor leaf")
}

func TestBuild_DuplicateIDIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		leafRow(1, model.SiteKyobo, model.PropertyTitle, "x", nil),
		leafRow(1, model.SiteKyobo, model.PropertyTitle, "y", nil),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestBuild_WrongSiteRowIsMalformed(t *testing.T) {
	rows := []model.OriginFilter{
		leafRow(1, model.SiteAladin, model.PropertyTitle, "x", nil),
	}
	_, err := Build(model.SiteKyobo, rows, Options{})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestBuild_EmptyRowsYieldEmptyForest(t *testing.T) {
	f, err := Build(model.SiteKyobo, nil, Options{})
	require.NoError(t, err)
	assert.False(t, f.Evaluate(map[string]string{model.PropertyTitle: "anything"}).Admitted)
}
