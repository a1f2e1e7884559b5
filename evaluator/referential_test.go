package evaluator

import (
	"testing"

	"github.com/archivequal/dwcacore/accumulate"
	"github.com/archivequal/dwcacore/record"
	"github.com/stretchr/testify/require"
)

func buildTarget(t *testing.T, dir string, ids []string) *Uniqueness {
	t.Helper()
	u, err := NewUniqueness(UniquenessConfig{Key: "target", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	for _, id := range ids {
		_, err := u.HandleEval(fakeRecord{id: id}, record.Core)
		require.NoError(t, err)
	}
	require.NoError(t, u.HandlePostIterate(accumulate.NewMemory()))
	return u
}

func TestReferentialCorrect(t *testing.T) {
	dir := t.TempDir()
	target := buildTarget(t, dir, []string{"1", "2"})
	defer target.Close()

	term := record.Term{Simple: "acceptedNameUsageID"}
	r, err := NewReferential(ReferentialConfig{
		Key: "r1", SourceTerm: term, SourceContext: record.Core,
		Target: target.Handle(), WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer r.Close()

	rows := []fakeRecord{
		{id: "2b", values: map[string]string{"acceptedNameUsageID": "2"}},
		{id: "2a", values: map[string]string{"acceptedNameUsageID": "1"}},
		{id: "2b", values: map[string]string{"acceptedNameUsageID": ""}},
	}
	for _, row := range rows {
		_, err := r.HandleEval(row, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, r.HandlePostIterate(acc))
	require.Empty(t, acc.Findings())
}

func TestReferentialDangling(t *testing.T) {
	dir := t.TempDir()
	target := buildTarget(t, dir, []string{"1", "2"})
	defer target.Close()

	term := record.Term{Simple: "parentID"}
	r, err := NewReferential(ReferentialConfig{
		Key: "r1", SourceTerm: term, SourceContext: record.Core,
		Target: target.Handle(), WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer r.Close()

	rows := []fakeRecord{
		{id: "1", values: map[string]string{"parentID": "4"}},
		{id: "2", values: map[string]string{"parentID": "1"}},
	}
	for _, row := range rows {
		_, err := r.HandleEval(row, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, r.HandlePostIterate(acc))
	findings := acc.Findings()
	require.Len(t, findings, 1)
	require.Equal(t, "4", findings[0].Value)
	require.Equal(t, record.FieldReferentialIntegrity, findings[0].Kind)
}

func TestReferentialMultiValueCorrect(t *testing.T) {
	dir := t.TempDir()
	target := buildTarget(t, dir, []string{"1", "3", "4"})
	defer target.Close()

	term := record.Term{Simple: "higherTaxonIDs"}
	r, err := NewReferential(ReferentialConfig{
		Key: "r1", SourceTerm: term, SourceContext: record.Core,
		Target: target.Handle(), MultiValueSeparator: "|", WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer r.Close()

	rows := []fakeRecord{
		{id: "1", values: map[string]string{"higherTaxonIDs": "3|4"}},
		{id: "3", values: map[string]string{"higherTaxonIDs": ""}},
		{id: "4", values: map[string]string{"higherTaxonIDs": ""}},
	}
	for _, row := range rows {
		_, err := r.HandleEval(row, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, r.HandlePostIterate(acc))
	require.Empty(t, acc.Findings())
}

func TestReferentialMultiValueDangling(t *testing.T) {
	dir := t.TempDir()
	target := buildTarget(t, dir, []string{"1", "3", "4"})
	defer target.Close()

	term := record.Term{Simple: "higherTaxonIDs"}
	r, err := NewReferential(ReferentialConfig{
		Key: "r1", SourceTerm: term, SourceContext: record.Core,
		Target: target.Handle(), MultiValueSeparator: "|", WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer r.Close()

	rows := []fakeRecord{
		{id: "1", values: map[string]string{"higherTaxonIDs": "3|5"}},
		{id: "3", values: map[string]string{"higherTaxonIDs": ""}},
		{id: "4", values: map[string]string{"higherTaxonIDs": ""}},
	}
	for _, row := range rows {
		_, err := r.HandleEval(row, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, r.HandlePostIterate(acc))
	findings := acc.Findings()
	require.Len(t, findings, 1)
	require.Equal(t, "5", findings[0].Value)
}

func TestReferentialEmptyTokenIgnored(t *testing.T) {
	dir := t.TempDir()
	target := buildTarget(t, dir, []string{"a", "b"})
	defer target.Close()

	term := record.Term{Simple: "f"}
	r, err := NewReferential(ReferentialConfig{
		Key: "r1", SourceTerm: term, SourceContext: record.Core,
		Target: target.Handle(), MultiValueSeparator: "|", WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.HandleEval(fakeRecord{id: "x", values: map[string]string{"f": "a||b"}}, record.Core)
	require.NoError(t, err)

	acc := accumulate.NewMemory()
	require.NoError(t, r.HandlePostIterate(acc))
	require.Empty(t, acc.Findings())
}

func TestReferentialTargetEmptySourceNonEmpty(t *testing.T) {
	dir := t.TempDir()
	target := buildTarget(t, dir, nil)
	defer target.Close()

	term := record.Term{Simple: "parentID"}
	r, err := NewReferential(ReferentialConfig{
		Key: "r1", SourceTerm: term, SourceContext: record.Core,
		Target: target.Handle(), WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer r.Close()

	for _, id := range []string{"1", "2", "3"} {
		_, err := r.HandleEval(fakeRecord{id: "x", values: map[string]string{"parentID": id}}, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, r.HandlePostIterate(acc))
	require.Len(t, acc.Findings(), 3)
}

func TestReferentialDuplicateLeftValuesOneFinding(t *testing.T) {
	dir := t.TempDir()
	target := buildTarget(t, dir, []string{"1"})
	defer target.Close()

	term := record.Term{Simple: "parentID"}
	r, err := NewReferential(ReferentialConfig{
		Key: "r1", SourceTerm: term, SourceContext: record.Core,
		Target: target.Handle(), WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 3; i++ {
		_, err := r.HandleEval(fakeRecord{id: "x", values: map[string]string{"parentID": "9"}}, record.Core)
		require.NoError(t, err)
	}

	acc := accumulate.NewMemory()
	require.NoError(t, r.HandlePostIterate(acc))
	require.Len(t, acc.Findings(), 1)
	require.Equal(t, "9", acc.Findings()[0].Value)
}

func TestNewReferentialRegistersSeparatorOnTarget(t *testing.T) {
	dir := t.TempDir()
	target, err := NewUniqueness(UniquenessConfig{Key: "target", Context: record.Core, WorkingFolder: dir})
	require.NoError(t, err)
	defer target.Close()

	term := record.Term{Simple: "higherTaxonIDs"}
	r, err := NewReferential(ReferentialConfig{
		Key: "r1", SourceTerm: term, SourceContext: record.Core,
		Target: target.Handle(), MultiValueSeparator: "|", WorkingFolder: dir,
	})
	require.NoError(t, err)
	defer r.Close()

	_, err = target.HandleEval(fakeRecord{id: "1"}, record.Core)
	require.NoError(t, err)
	_, err = target.HandleEval(fakeRecord{id: "3|4"}, record.Core)
	require.Error(t, err)

	acc := accumulate.NewMemory()
	require.NoError(t, target.HandlePostIterate(acc))
	findings := acc.Findings()
	require.Len(t, findings, 1)
	require.Equal(t, record.IntakeDegraded, findings[0].Kind)
}

func TestNewReferentialRequiresFields(t *testing.T) {
	dir := t.TempDir()
	target := buildTarget(t, dir, []string{"1"})
	defer target.Close()

	_, err := NewReferential(ReferentialConfig{})
	require.Error(t, err)

	_, err = NewReferential(ReferentialConfig{Key: "r1", SourceContext: record.Core, SourceTerm: record.Term{Simple: "f"}, WorkingFolder: dir})
	require.Error(t, err)
}
