package simargs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gpdrDefaults() []Arg {
	return []Arg{
		{Name: "measures", Value: NewList()},
		{Name: "starting_infections", Value: NewInt(500)},
		{Name: "quicktest", Value: NewBool("false")},
		{Name: "seed", Value: NewInt(1)},
		{Name: "cores", Value: NewInt(1)},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(gpdrDefaults())
	require.NoError(t, err)
	return s
}

func mustGet(t *testing.T, s *Store, name string) Value {
	t.Helper()
	v, ok := s.Get(name)
	require.True(t, ok, "parameter %q missing", name)
	return v
}

func TestNewStore_RejectsDuplicatesAndEmptyNames(t *testing.T) {
	_, err := NewStore([]Arg{{Name: "seed", Value: NewInt(1)}, {Name: "seed", Value: NewInt(2)}})
	assert.Error(t, err)

	_, err = NewStore([]Arg{{Name: "  ", Value: NewInt(1)}})
	assert.Error(t, err)
}

func TestNewStore_KeepsOrder(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, []string{"measures", "starting_infections", "quicktest", "seed", "cores"}, s.Names())
	assert.Equal(t, DefaultBindingToken, s.BindingToken())
}

func TestMerge_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	s.Merge(
		Mapping(KV{"seed", NewInt(2)}, KV{"starting_infections", NewInt(10)}),
		Mapping(KV{"seed", NewInt(3)}),
		Mapping(KV{"starting_infections", NewInt(20)}),
	)

	assert.Equal(t, "3", mustGet(t, s, "seed").Text())
	assert.Equal(t, "20", mustGet(t, s, "starting_infections").Text())
	// untouched keys keep their defaults
	assert.Equal(t, "false", mustGet(t, s, "quicktest").Text())
	assert.Equal(t, "1", mustGet(t, s, "cores").Text())
}

func TestMerge_ReplacesRatherThanMerges(t *testing.T) {
	s, err := NewStore([]Arg{{Name: "measures", Value: NewList("a.yml", "b.yml")}})
	require.NoError(t, err)

	s.Merge(Mapping(KV{"measures", NewList("c.yml")}))
	assert.Equal(t, []string{"c.yml"}, mustGet(t, s, "measures").Items())
}

func TestMerge_UnknownKeysLeaveStoreUnchanged(t *testing.T) {
	s := newTestStore(t)
	before := s.Clone()

	report := s.Merge(Mapping(KV{"sed", NewInt(5)}, KV{"startng_infections", NewInt(9)}))

	assert.True(t, s.Equal(before))
	assert.Equal(t, []string{"sed", "startng_infections"}, report.Ignored)
	assert.Empty(t, report.Bound)
}

func TestMerge_EnsembleBindingAlone(t *testing.T) {
	s := newTestStore(t)
	report := s.Merge(Overrides{EnsembleParameter: "seed"})

	v := mustGet(t, s, "seed")
	assert.True(t, v.IsBinding())
	assert.Equal(t, DefaultBindingToken, v.Text())
	assert.Equal(t, "seed", report.Bound)
}

func TestMerge_ExplicitOverrideBeatsBinding(t *testing.T) {
	s := newTestStore(t)
	s.Merge(Overrides{EnsembleParameter: "seed"}, Mapping(KV{"seed", NewInt(5)}))

	v := mustGet(t, s, "seed")
	assert.False(t, v.IsBinding())
	assert.Equal(t, "5", v.Text())
}

func TestMerge_BindingAppliedBeforeSameMappingValues(t *testing.T) {
	s := newTestStore(t)
	m := Mapping(KV{"seed", NewInt(7)}).WithEnsembleParameter("seed")
	s.Merge(m)

	assert.Equal(t, "7", mustGet(t, s, "seed").Text())
}

func TestMerge_LaterBindingWinsOverEarlierValue(t *testing.T) {
	s := newTestStore(t)
	s.Merge(Mapping(KV{"seed", NewInt(7)}), Overrides{EnsembleParameter: "seed"})

	assert.True(t, mustGet(t, s, "seed").IsBinding())
}

func TestMerge_AtMostOneBinding(t *testing.T) {
	s := newTestStore(t)
	s.Merge(Overrides{EnsembleParameter: "seed"}, Overrides{EnsembleParameter: "starting_infections"})

	bound, ok := s.Bound()
	require.True(t, ok)
	assert.Equal(t, "starting_infections", bound)
	assert.Equal(t, "1", mustGet(t, s, "seed").Text())
}

func TestMerge_MovedBindingRestoresExplicitValue(t *testing.T) {
	s := newTestStore(t)
	s.Merge(
		Mapping(KV{"seed", NewInt(5)}),
		Overrides{EnsembleParameter: "seed"},
		Overrides{EnsembleParameter: "starting_infections"},
	)

	bound, ok := s.Bound()
	require.True(t, ok)
	assert.Equal(t, "starting_infections", bound)
	assert.Equal(t, "5", mustGet(t, s, "seed").Text())

	// Rebinding the same parameter keeps the value it held before binding.
	s.Merge(Overrides{EnsembleParameter: "starting_infections"}, Overrides{EnsembleParameter: "seed"})
	assert.Equal(t, "500", mustGet(t, s, "starting_infections").Text())
	assert.True(t, mustGet(t, s, "seed").IsBinding())
}

func TestMerge_UnknownEnsembleParameterIgnored(t *testing.T) {
	s := newTestStore(t)
	before := s.Clone()
	report := s.Merge(Overrides{EnsembleParameter: "nope"})

	assert.True(t, s.Equal(before))
	assert.Equal(t, []string{"ensemble_parameter=nope"}, report.Ignored)
	assert.Equal(t, 5, s.Len())
}

func TestMerge_CustomBindingToken(t *testing.T) {
	s, err := NewStore(gpdrDefaults(), WithBindingToken("$ENSEMBLE_TASK_ID"))
	require.NoError(t, err)

	s.Merge(Overrides{EnsembleParameter: "seed"})
	assert.Equal(t, "$ENSEMBLE_TASK_ID", mustGet(t, s, "seed").Text())
}

func TestMerge_Idempotent(t *testing.T) {
	seq := []Overrides{
		Mapping(KV{"seed", NewInt(2)}).WithEnsembleParameter("starting_infections"),
		Mapping(KV{"measures", NewList("a.yml")}, KV{"bogus", NewString("x")}),
	}

	once := newTestStore(t)
	once.Merge(seq...)

	twice := newTestStore(t)
	twice.Merge(seq...)
	twice.Merge(seq...)

	assert.True(t, once.Equal(twice))
}

func TestStore_ResetAndClone(t *testing.T) {
	s := newTestStore(t)
	c := s.Clone()
	s.Merge(Mapping(KV{"seed", NewInt(99)}))

	assert.Equal(t, "1", mustGet(t, c, "seed").Text(), "clone must not observe later merges")

	s.Reset()
	assert.True(t, s.Equal(c))
}

func TestRender_Scalar(t *testing.T) {
	s, err := NewStore([]Arg{{Name: "cores", Value: NewInt(4)}})
	require.NoError(t, err)
	assert.Contains(t, s.Render(), " --cores 4")
	assert.Equal(t, " --cores 4", s.Render())
}

func TestRender_Sequence(t *testing.T) {
	s, err := NewStore([]Arg{{Name: "measures", Value: NewList("a.yml", "b.yml")}})
	require.NoError(t, err)
	assert.Equal(t, "a.yml  b.yml", s.Render())
}

func TestRender_MixedOrderAndEmptyList(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, " --starting_infections 500 --quicktest false --seed 1 --cores 1", s.Render())

	s.Merge(Mapping(KV{"measures", NewList("m.yml")}).WithEnsembleParameter("seed"))
	assert.Equal(t, "m.yml --starting_infections 500 --quicktest false --seed $SLURM_ARRAY_TASK_ID --cores 1", s.Render())
}

func TestRender_DoesNotMutate(t *testing.T) {
	s := newTestStore(t)
	before := s.Clone()
	_ = s.Render()
	_ = s.Entries()
	assert.True(t, s.Equal(before))
}

func TestEntries(t *testing.T) {
	s, err := NewStore([]Arg{
		{Name: "measures", Value: NewList("a.yml", "b.yml")},
		{Name: "empty", Value: NewList()},
		{Name: "seed", Value: NewInt(3)},
	})
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Flag: "measures", Values: []string{"a.yml", "b.yml"}, Positional: true},
		{Flag: "seed", Values: []string{"3"}},
	}, s.Entries())
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in       string
		wantKind Kind
		wantText string
	}{
		{"42", KindNumber, "42"},
		{"0.50", KindNumber, "0.50"},
		{"-3", KindNumber, "-3"},
		{"true", KindBool, "true"},
		{"False", KindBool, "False"},
		{"brent", KindString, "brent"},
		{"", KindString, ""},
		{"[a.yml, b.yml]", KindList, "a.yml b.yml"},
		{"[]", KindList, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v := ParseValue(tt.in)
			assert.Equal(t, tt.wantKind, v.Kind())
			assert.Equal(t, tt.wantText, v.Text())
		})
	}
}

func TestParseAssignments(t *testing.T) {
	o, err := ParseAssignments([]string{"seed=3", "ensemble_parameter=starting_infections", "label=a=b", "seed=4"})
	require.NoError(t, err)

	assert.Equal(t, "starting_infections", o.EnsembleParameter)
	assert.Equal(t, []string{"seed", "label"}, o.Keys())
	v, _ := o.Lookup("seed")
	assert.Equal(t, "4", v.Text())
	v, _ = o.Lookup("label")
	assert.Equal(t, "a=b", v.Text())

	_, err = ParseAssignments([]string{"noequals"})
	assert.Error(t, err)
	_, err = ParseAssignments([]string{"=3"})
	assert.Error(t, err)
}

func TestLoadOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	content := `quicktest: true
ensemble_parameter: seed
measures:
  - lockdown.yml
  - schools.yml
starting_infections: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	o, err := LoadOverridesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "seed", o.EnsembleParameter)
	assert.Equal(t, []string{"quicktest", "measures", "starting_infections"}, o.Keys())

	m, _ := o.Lookup("measures")
	assert.Equal(t, []string{"lockdown.yml", "schools.yml"}, m.Items())
	q, _ := o.Lookup("quicktest")
	assert.Equal(t, KindBool, q.Kind())
}

func TestLoadOverridesFile_RejectsNestedMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed:\n  nested: 1\n"), 0o644))

	_, err := LoadOverridesFile(path)
	assert.Error(t, err)
}

func TestLookupLast(t *testing.T) {
	v, ok := LookupLast("cores",
		Mapping(KV{"cores", NewInt(2)}),
		Mapping(KV{"seed", NewInt(1)}),
		Mapping(KV{"cores", NewInt(8)}),
		Mapping(),
	)
	require.True(t, ok)
	assert.Equal(t, "8", v.Text())

	_, ok = LookupLast("memory", Mapping(KV{"cores", NewInt(2)}))
	assert.False(t, ok)
}
