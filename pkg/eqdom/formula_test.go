package eqdom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func atoms(t *testing.T, facts ...string) []Atom {
	t.Helper()
	out := make([]Atom, len(facts))
	for i, f := range facts {
		a, err := ParseAtom(f)
		require.NoError(t, err, f)
		out[i] = a
	}
	return out
}

func formula(t *testing.T, facts ...string) Formula {
	t.Helper()
	return Close(atoms(t, facts...)...)
}

func TestClose(t *testing.T) {
	tests := []struct {
		name  string
		facts []string
		want  string
	}{
		{"empty", nil, "true"},
		{"reflexive", []string{"x == x"}, "true"},
		{"constant truth", []string{"1 == 1", "1 != 2"}, "true"},
		{"constant falsity", []string{"1 != 1"}, "false"},
		{"two constants", []string{"x == 1", "x == 2"}, "false"},
		{"equal and unequal", []string{"x == y", "x != y"}, "false"},
		{"through constant", []string{"x == 1", "y == 1", "x != y"}, "false"},
		{"transitive", []string{"x == y", "y == 1"}, "x==1 && x==y && y==1"},
		{"disequality to constant", []string{"x != y", "y == 1"}, "x!=1 && x!=y && y==1"},
		{"distinct constants", []string{"1 == x", "y == 2"}, "x!=y && x==1 && y==2"},
		{"redundant disequality", []string{"x == 3", "x != 5"}, "x==3"},
		{"normalized order", []string{"y == x"}, "x==y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formula(t, tt.facts...).String())
		})
	}
}

func TestFormula_Entails(t *testing.T) {
	f := formula(t, "x == y", "y == 1", "z != x")
	tests := []struct {
		atom string
		want bool
	}{
		{"x == 1", true},
		{"y == x", true},
		{"x != 2", true},
		{"z != 1", true},
		{"z != y", true},
		{"z == 1", false},
		{"w != x", false},
		{"w == w", true},
		{"x == 2", false},
	}
	for _, tt := range tests {
		t.Run(tt.atom, func(t *testing.T) {
			a, err := ParseAtom(tt.atom)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Entails(a))
		})
	}
	assert.True(t, Bottom().Entails(Eq(Var("x"), Const(1))))
	assert.True(t, f.EntailsAll(formula(t, "x == 1", "z != y")))
	assert.False(t, f.EntailsAll(Bottom()))
	assert.True(t, f.EntailsAll(Top()))
}

func TestFormula_Join(t *testing.T) {
	a := formula(t, "x == 0", "y == 0")
	b := formula(t, "x == 1", "y == 1")
	assert.Equal(t, "x==y", a.Join(b).String())
	assert.Equal(t, "x!=y", formula(t, "x == 1", "y == 2").Join(formula(t, "x == 3", "y == 4")).String())
	assert.True(t, a.Join(formula(t, "x != 0")).IsTop())
	assert.True(t, a.Join(Bottom()).Equal(a))
	assert.True(t, Bottom().Join(a).Equal(a))
}

func TestFormula_ProjectAndForget(t *testing.T) {
	f := formula(t, "x == y", "y == 1", "z != y")
	assert.Equal(t, "x!=z && x==1 && z!=1", f.Forget("y").String())
	assert.Equal(t, "x!=z", formula(t, "x == y", "z != y").Forget("y").String())
	assert.Equal(t, "y==1", f.Project(func(v string) bool { return v == "y" }).String())
	assert.Equal(t, []string{"x", "y", "z"}, f.Vars())
}

func TestParseAtom(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"x==1", "x==1", false},
		{" 3 != y ", "y!=3", false},
		{"b == a", "a==b", false},
		{"x == -2", "x==-2", false},
		{"x < 1", "", true},
		{"x == 1y", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := ParseAtom(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.String())
		})
	}
}
