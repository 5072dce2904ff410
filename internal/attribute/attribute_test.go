package attribute

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var healthSchema = Schema{
	ID: "Health",
	Fields: []FieldDef{
		{Name: "Health", Default: 100},
		{Name: "MaxHealth", Default: 100},
	},
}

func TestParse(t *testing.T) {
	attr, err := Parse("Health.MaxHealth")
	require.NoError(t, err)
	assert.Equal(t, New("Health", "MaxHealth"), attr)
	assert.Equal(t, "Health.MaxHealth", attr.String())

	_, err = Parse("Health")
	assert.True(t, errors.Is(err, ErrInvalidAttribute))

	assert.False(t, Attribute{}.IsValid())
	assert.Equal(t, "<none>", Attribute{}.String())
}

func TestSets_BaseAndCurrent(t *testing.T) {
	sets := NewSets()
	require.NoError(t, sets.Add(NewSet(healthSchema)))

	hp := New("Health", "Health")
	base, ok := sets.Base(hp)
	require.True(t, ok)
	assert.Equal(t, 100.0, base)

	require.True(t, sets.SetBase(hp, 50))
	require.True(t, sets.SetCurrent(hp, 75))

	v, ok := sets.Get("Health").Value("Health")
	require.True(t, ok)
	assert.Equal(t, Value{Base: 50, Current: 75}, v)

	assert.False(t, sets.SetBase(New("Mana", "Mana"), 1))
	assert.False(t, sets.Has(New("Health", "Shield")))
	assert.True(t, sets.HasAttributeSet("Health"))
	assert.Error(t, sets.Add(NewSet(healthSchema)))
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(healthSchema)
	require.NoError(t, err)

	assert.True(t, reg.Resolve(New("Health", "MaxHealth")))
	assert.False(t, reg.Resolve(New("Health", "Mana")))

	sets, err := reg.Instantiate("Health")
	require.NoError(t, err)
	assert.Equal(t, []SetID{"Health"}, sets.IDs())

	_, err = reg.Instantiate("Mana")
	assert.Error(t, err)

	err = reg.Register(Schema{ID: "Dup", Fields: []FieldDef{{Name: "A"}, {Name: "A"}}})
	assert.Error(t, err)
}
