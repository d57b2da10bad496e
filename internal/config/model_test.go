package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Development, m)

	m, err = ParseMode(" Production ")
	require.NoError(t, err)
	assert.True(t, m.IsProduction())

	_, err = ParseMode("staging")
	require.Error(t, err)
}

func TestParseReloadMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]ReloadMode{"": ReloadFull, "stream": ReloadStream, "NONE": ReloadNone} {
		got, err := ParseReloadMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseReloadMode("partial")
	require.Error(t, err)
}

func TestStep_String(t *testing.T) {
	t.Parallel()

	s := &Step{Kind: StepSeries, Children: []*Step{
		{Kind: StepTask, Name: "clean"},
		{Kind: StepParallel, Children: []*Step{
			{Kind: StepTask, Name: "html"},
			{Kind: StepTarget, Name: "assets"},
		}},
	}}

	assert.Equal(t, "series(task.clean, parallel(task.html, target.assets))", s.String())

	var leaves []string
	s.Walk(func(st *Step) {
		if st.Kind == StepTask || st.Kind == StepTarget {
			leaves = append(leaves, st.Name)
		}
	})
	assert.Equal(t, []string{"clean", "html", "assets"}, leaves)
}

func TestModel_TargetPrefersProfileOverride(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	global := &Target{Name: "build"}
	local := &Target{Name: "build"}
	m := &Model{
		Targets:  map[string]*Target{"build": global, "dev": {Name: "dev"}},
		Profiles: map[string]*Profile{"docs": {Name: "docs", Targets: map[string]*Target{"build": local}}},
	}

	// --- Act ---
	p, err := m.Profile("docs")
	require.NoError(t, err)
	got, ok := m.Target(p, "build")

	// --- Assert ---
	require.True(t, ok)
	assert.Same(t, local, got)
	assert.Equal(t, []string{"build", "dev"}, m.TargetNames(p))

	_, err = m.Profile("missing")
	assert.ErrorContains(t, err, "available: docs")
}

func TestModel_TaskFallsBackToBareDeclaration(t *testing.T) {
	t.Parallel()

	m := &Model{Tasks: map[string]*Task{}}
	tk := m.Task("clean")
	assert.Equal(t, "clean", tk.Name)
	assert.Equal(t, ReloadNone, tk.Reload)
	assert.Empty(t, tk.Src)
}
