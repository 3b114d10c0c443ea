package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
	"github.com/sipeed/picocrud/pkg/domain/resource"
	"github.com/sipeed/picocrud/pkg/infrastructure/eventbus"
	"github.com/sipeed/picocrud/pkg/infrastructure/persistence"
)

var alice = domain.User{ID: "alice"}

func newTestContainer(t *testing.T) (*Container, *eventbus.InProcessEventBus) {
	t.Helper()
	repo, err := persistence.NewFileResourceRepository(t.TempDir())
	require.NoError(t, err)
	bus := eventbus.New()
	return NewContainer(bus, repo), bus
}

func seedResource(t *testing.T, c *Container) *resource.Resource {
	t.Helper()
	res, err := c.Service.CreateResource(context.Background(), "printer", "office", []string{"hw", "hw", " "}, alice)
	require.NoError(t, err)
	return res
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestCreateResourcePublishesAndDedupesTags(t *testing.T) {
	c, bus := newTestContainer(t)
	var seen []domain.EventType
	bus.SubscribeAll(func(e domain.Event) { seen = append(seen, e.EventType()) })

	res := seedResource(t, c)
	assert.Equal(t, domain.Tags{"hw"}, res.Tags)
	assert.Equal(t, "alice", res.UpdatedBy)
	assert.Equal(t, []domain.EventType{domain.EventResourceCreated}, seen)

	_, err := c.Service.CreateResource(context.Background(), "", "", nil, alice)
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestResourceLifecycle(t *testing.T) {
	c, _ := newTestContainer(t)
	ctx := context.Background()
	res := seedResource(t, c)

	archived, err := c.Service.ArchiveResource(ctx, res.ID(), alice)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusArchived, archived.Status)

	all, n, err := c.Service.ListResources(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, all, 1)

	require.NoError(t, c.Service.DeleteResource(ctx, res.ID(), alice))
	_, err = c.Service.GetResource(ctx, res.ID())
	require.ErrorIs(t, err, domain.ErrDomainNotFound)
}

func TestDispatchSaveThenUpdateByKey(t *testing.T) {
	c, bus := newTestContainer(t)
	ctx := context.Background()
	res := seedResource(t, c)
	var childEvents int
	bus.Subscribe(domain.EventChildSaved, func(domain.Event) { childEvents++ })
	bus.Subscribe(domain.EventChildUpdated, func(domain.Event) { childEvents++ })

	reply, err := c.Dispatcher.Execute(ctx, Command{
		Operation: domain.OpSave,
		Kind:      child.KindCharacteristic,
		ParentID:  res.ID(),
		Element:   raw(t, child.Characteristic{Key: "color", Value: "red"}),
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, 201, reply.Status)
	saved := reply.Children.([]*child.Characteristic)
	require.Len(t, saved, 1)
	id := saved[0].ID
	assert.False(t, id.IsZero())

	reply, err = c.Dispatcher.Execute(ctx, Command{
		Operation: domain.OpUpdateByKey,
		Kind:      child.KindCharacteristic,
		ParentID:  res.ID(),
		Value:     "color",
		Element:   raw(t, child.Characteristic{Key: "color", Value: "blue"}),
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, 200, reply.Status)
	require.Len(t, reply.Parent.Characteristics, 1)
	assert.Equal(t, id, reply.Parent.Characteristics[0].ID)
	assert.Equal(t, "blue", reply.Parent.Characteristics[0].Value)
	assert.Equal(t, 2, childEvents)
}

func TestDispatchRejectsUnsupportedNaturalKey(t *testing.T) {
	c, _ := newTestContainer(t)
	res := seedResource(t, c)

	_, err := c.Dispatcher.Execute(context.Background(), Command{
		Operation: domain.OpDeleteByName,
		Kind:      child.KindCharacteristic,
		ParentID:  res.ID(),
		Value:     "color",
	}, alice)
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestDispatchValidation(t *testing.T) {
	c, _ := newTestContainer(t)
	res := seedResource(t, c)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  Command
	}{
		{"unknown op", Command{Operation: "upsert", Kind: child.KindCharacteristic, ParentID: res.ID()}},
		{"unknown kind", Command{Operation: domain.OpGet, Kind: "hobby", ParentID: res.ID()}},
		{"missing parent", Command{Operation: domain.OpGet, Kind: child.KindCharacteristic}},
		{"missing element", Command{Operation: domain.OpSave, Kind: child.KindCharacteristic, ParentID: res.ID()}},
		{"invalid element", Command{Operation: domain.OpSave, Kind: child.KindContactMedium, ParentID: res.ID(),
			Element: json.RawMessage(`{"name":"work"}`)}},
		{"null in batch", Command{Operation: domain.OpSaveMany, Kind: child.KindRelatedParty, ParentID: res.ID(),
			Elements: json.RawMessage(`[{"related_id":"x"}, null]`)}},
		{"missing id", Command{Operation: domain.OpDeleteByID, Kind: child.KindCharacteristic, ParentID: res.ID()}},
		{"missing value", Command{Operation: domain.OpDeleteByRelatedID, Kind: child.KindRelatedDomain, ParentID: res.ID()}},
		{"bad json", Command{Operation: domain.OpSave, Kind: child.KindCharacteristic, ParentID: res.ID(),
			Element: json.RawMessage(`{"key":`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Dispatcher.Execute(ctx, tt.cmd, alice)
			require.ErrorIs(t, err, domain.ErrBadRequest)
		})
	}
}

func TestDispatchRelatedCollectionsAreSeparate(t *testing.T) {
	c, _ := newTestContainer(t)
	ctx := context.Background()
	res := seedResource(t, c)

	_, err := c.Dispatcher.Execute(ctx, Command{
		Operation: domain.OpSaveMany,
		Kind:      child.KindRelatedParty,
		ParentID:  res.ID(),
		Elements:  raw(t, []child.RelatedObject{{RelatedID: "party-1"}, {RelatedID: "party-2"}}),
	}, alice)
	require.NoError(t, err)

	reply, err := c.Dispatcher.Execute(ctx, Command{
		Operation: domain.OpGet, Kind: child.KindRelatedDomain, ParentID: res.ID(),
	}, alice)
	require.NoError(t, err)
	assert.Empty(t, reply.Children)
	assert.Nil(t, reply.Parent)

	reply, err = c.Dispatcher.Execute(ctx, Command{
		Operation: domain.OpDeleteByRelatedID, Kind: child.KindRelatedParty, ParentID: res.ID(), Value: "party-1",
	}, alice)
	require.NoError(t, err)
	assert.Len(t, reply.Parent.RelatedParties, 1)
	assert.Equal(t, "party-2", reply.Parent.RelatedParties[0].RelatedID)
}

func TestDispatchDeleteManyByCriteria(t *testing.T) {
	c, _ := newTestContainer(t)
	ctx := context.Background()
	res := seedResource(t, c)

	_, err := c.Dispatcher.Execute(ctx, Command{
		Operation: domain.OpSaveMany,
		Kind:      child.KindContactMedium,
		ParentID:  res.ID(),
		Elements: raw(t, []child.ContactMedium{
			{Name: "work", Type: "email"},
			{Name: "home", Type: "email"},
			{Name: "cell", Type: "phone"},
		}),
	}, alice)
	require.NoError(t, err)

	reply, err := c.Dispatcher.Execute(ctx, Command{
		Operation: domain.OpDeleteMany,
		Kind:      child.KindContactMedium,
		ParentID:  res.ID(),
		Criteria:  child.ByType("email"),
	}, alice)
	require.NoError(t, err)
	assert.Len(t, reply.Children, 2)
	require.Len(t, reply.Parent.ContactMedia, 1)
	assert.Equal(t, "cell", reply.Parent.ContactMedia[0].Name)

	_, err = c.Dispatcher.Execute(ctx, Command{
		Operation: domain.OpDeleteMany,
		Kind:      child.KindContactMedium,
		ParentID:  res.ID(),
		Criteria:  child.ByType("email"),
	}, alice)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDispatchMissingParent(t *testing.T) {
	c, _ := newTestContainer(t)
	_, err := c.Dispatcher.Execute(context.Background(), Command{
		Operation: domain.OpSave,
		Kind:      child.KindRelatedAction,
		ParentID:  "ghost",
		Element:   raw(t, child.RelatedAction{Name: "approve"}),
	}, alice)
	require.ErrorIs(t, err, domain.ErrDomainNotFound)
}

func TestByFieldOperation(t *testing.T) {
	op, err := ByFieldOperation("update", child.FieldRelatedID)
	require.NoError(t, err)
	assert.Equal(t, domain.OpUpdateByRelatedID, op)

	op, err = ByFieldOperation("delete", child.FieldName)
	require.NoError(t, err)
	assert.Equal(t, domain.OpDeleteByName, op)

	_, err = ByFieldOperation("patch", child.FieldName)
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestDispatcherKinds(t *testing.T) {
	c, _ := newTestContainer(t)
	assert.Equal(t, child.AllKinds(), c.Dispatcher.Kinds())
}

func TestPersistRejectsMismatchedID(t *testing.T) {
	c, _ := newTestContainer(t)
	res := seedResource(t, c)
	_, err := c.Service.Persist(context.Background(), "other", res, alice)
	require.ErrorIs(t, err, domain.ErrBadRequest)
}
