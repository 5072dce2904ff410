package abilitysystem

import (
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/cue/mocks"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/prediction"
)

func TestCueDispatchOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)

	sets := attribute.NewSets()
	if err := sets.Add(attribute.NewSet(attribute.Schema{
		ID:     "Vitals",
		Fields: []attribute.FieldDef{{Name: "Health", Default: 100}, {Name: "Armor", Default: 10}},
	})); err != nil {
		t.Fatalf("Add: %v", err)
	}
	c := New(Config{ID: "hero", Authority: true, Attributes: sets, Cues: d})

	def := armorBuff()
	def.StackingType = effect.AggregateByTarget

	gomock.InOrder(
		d.EXPECT().InvokeCue("hero", tagCueShine, cue.OnActive, gomock.Any()),
		d.EXPECT().InvokeCue("hero", tagCueShine, cue.WhileActive, gomock.Any()),
		// second application stacks and goes through the default multicaster
		d.EXPECT().InvokeCue("hero", tagCueShine, cue.OnActive, gomock.Any()),
		d.EXPECT().InvokeCue("hero", tagCueShine, cue.WhileActive, gomock.Any()),
		d.EXPECT().InvokeCue("hero", tagCueShine, cue.Removed, gomock.Any()),
	)

	h := c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})
	if !effect.IsValidHandle(h) {
		t.Fatalf("ApplyGameplayEffectToSelf() = %d; want valid handle", h)
	}
	c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})
	if !c.RemoveActiveGameplayEffect(h, -1) {
		t.Fatal("RemoveActiveGameplayEffect() = false")
	}
}

func TestSuppressCues(t *testing.T) {
	h := newHarness(t, "hero", true, nil)
	h.c.SetSuppressCues(true)

	h.c.ApplyGameplayEffectToSelf(armorBuff(), 1, prediction.Key{})

	if calls := h.cues.Calls(); len(calls) != 0 {
		t.Errorf("Calls() = %v; want none", calls)
	}
}
