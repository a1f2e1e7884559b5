package evaluator

import (
	"testing"

	"github.com/archivequal/dwcacore/accumulate"
	"github.com/archivequal/dwcacore/record"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	id      string
	rowType record.RowType
	values  map[string]string
}

func (f fakeRecord) ID() string            { return f.id }
func (f fakeRecord) RowType() record.RowType { return f.rowType }
func (f fakeRecord) Value(t record.Term) (string, bool) {
	v, ok := f.values[t.Simple]
	return v, ok
}

func TestUniquenessNoDuplicates(t *testing.T) {
	dir := t.TempDir()
	u, err := NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	defer u.Close()

	for _, id := range []string{"A", "B", "C"} {
		_, err := u.HandleEval(fakeRecord{id: id}, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	require.Empty(t, acc.Findings())
}

func TestUniquenessDuplicates(t *testing.T) {
	dir := t.TempDir()
	u, err := NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	defer u.Close()

	for _, id := range []string{"A", "B", "A", "A"} {
		_, err := u.HandleEval(fakeRecord{id: id}, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	findings := acc.Findings()
	require.Len(t, findings, 2)
	for _, f := range findings {
		require.Equal(t, "A", f.Value)
		require.Equal(t, record.FieldUniqueness, f.Kind)
		require.Equal(t, record.Error, f.Severity)
	}
}

func TestUniquenessCaseInsensitiveDuplicate(t *testing.T) {
	dir := t.TempDir()
	u, err := NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	defer u.Close()

	for _, id := range []string{"abc", "ABC"} {
		_, err := u.HandleEval(fakeRecord{id: id}, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	require.Len(t, acc.Findings(), 1)
}

func TestUniquenessBlankValuesSkipped(t *testing.T) {
	dir := t.TempDir()
	u, err := NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	defer u.Close()

	for _, id := range []string{"", "   ", "A"} {
		_, err := u.HandleEval(fakeRecord{id: id}, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	require.Empty(t, acc.Findings())
}

func TestUniquenessRestrictionFiltersContextAndRowType(t *testing.T) {
	dir := t.TempDir()
	occurrence := record.RowType("Occurrence")
	u, err := NewUniqueness(UniquenessConfig{
		Key: "u1", Context: record.Core, RowType: &occurrence, WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer u.Close()

	// Wrong context: ignored.
	_, err = u.HandleEval(fakeRecord{id: "A", rowType: occurrence}, record.Ext)
	require.NoError(t, err)
	// Wrong row-type: ignored.
	_, err = u.HandleEval(fakeRecord{id: "A", rowType: "Taxon"}, record.Core)
	require.NoError(t, err)
	// Matches restriction.
	_, err = u.HandleEval(fakeRecord{id: "A", rowType: occurrence}, record.Core)
	require.NoError(t, err)
	_, err = u.HandleEval(fakeRecord{id: "A", rowType: occurrence}, record.Core)
	require.NoError(t, err)

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	require.Len(t, acc.Findings(), 1)
}

func TestUniquenessEmptyStream(t *testing.T) {
	dir := t.TempDir()
	u, err := NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	defer u.Close()

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	require.Empty(t, acc.Findings())
}

func TestUniquenessUsesTermWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	term := record.Term{Simple: "taxonID"}
	u, err := NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core, Term: &term, WorkingFolder: dir})
	require.NoError(t, err)
	defer u.Close()

	for _, v := range []string{"1", "2", "1"} {
		_, err := u.HandleEval(fakeRecord{id: "unused", values: map[string]string{"taxonID": v}}, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	findings := acc.Findings()
	require.Len(t, findings, 1)
	require.Equal(t, "1", findings[0].Value)
	require.Contains(t, findings[0].Message, "taxonID")
}

func TestUniquenessRejectsValueContainingWatchedSeparator(t *testing.T) {
	dir := t.TempDir()
	u, err := NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	defer u.Close()
	u.watchSeparator("|")

	_, err = u.HandleEval(fakeRecord{id: "A"}, record.Core)
	require.NoError(t, err)
	_, err = u.HandleEval(fakeRecord{id: "3|4"}, record.Core)
	require.Error(t, err)
	require.Contains(t, err.Error(), "3|4")
	_, err = u.HandleEval(fakeRecord{id: "B"}, record.Core)
	require.NoError(t, err)

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	findings := acc.Findings()
	require.Len(t, findings, 1)
	require.Equal(t, record.IntakeDegraded, findings[0].Kind)
}

func TestUniquenessIgnoresUnregisteredSeparatorLikeSubstring(t *testing.T) {
	dir := t.TempDir()
	u, err := NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	defer u.Close()

	_, err = u.HandleEval(fakeRecord{id: "3|4"}, record.Core)
	require.NoError(t, err)

	acc := accumulate.NewMemory()
	require.NoError(t, u.HandlePostIterate(acc))
	require.Empty(t, acc.Findings())
}

func TestNewUniquenessRequiresFields(t *testing.T) {
	_, err := NewUniqueness(UniquenessConfig{})
	require.Error(t, err)

	_, err = NewUniqueness(UniquenessConfig{Key: "u1"})
	require.Error(t, err)

	_, err = NewUniqueness(UniquenessConfig{Key: "u1", Context: record.Core})
	require.Error(t, err)
}
