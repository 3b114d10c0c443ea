package nested

import (
	"context"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
)

// Natural-key operations. Each is only callable for element kinds that expose
// the key, so an UpdateByName on characteristics does not compile.

func UpdateByName[P any, C child.NamedElement](ctx context.Context, e *Engine[P, C], parentID domain.EntityID, name string, replacement C, user domain.User) (P, []C, error) {
	return e.update(ctx, domain.OpUpdateByName, parentID, child.ByName(name), replacement, user)
}

func UpdateByKey[P any, C child.KeyedElement](ctx context.Context, e *Engine[P, C], parentID domain.EntityID, key string, replacement C, user domain.User) (P, []C, error) {
	return e.update(ctx, domain.OpUpdateByKey, parentID, child.ByKey(key), replacement, user)
}

func UpdateByType[P any, C child.TypedElement](ctx context.Context, e *Engine[P, C], parentID domain.EntityID, typ string, replacement C, user domain.User) (P, []C, error) {
	return e.update(ctx, domain.OpUpdateByType, parentID, child.ByType(typ), replacement, user)
}

func UpdateByRelatedID[P any, C child.RelatedElement](ctx context.Context, e *Engine[P, C], parentID domain.EntityID, relatedID string, replacement C, user domain.User) (P, []C, error) {
	return e.update(ctx, domain.OpUpdateByRelatedID, parentID, child.ByRelatedID(relatedID), replacement, user)
}

func DeleteByName[P any, C child.NamedElement](ctx context.Context, e *Engine[P, C], parentID domain.EntityID, name string, user domain.User) (P, []C, error) {
	return e.remove(ctx, domain.OpDeleteByName, parentID, child.ByName(name), false, user)
}

func DeleteByKey[P any, C child.KeyedElement](ctx context.Context, e *Engine[P, C], parentID domain.EntityID, key string, user domain.User) (P, []C, error) {
	return e.remove(ctx, domain.OpDeleteByKey, parentID, child.ByKey(key), false, user)
}

func DeleteByType[P any, C child.TypedElement](ctx context.Context, e *Engine[P, C], parentID domain.EntityID, typ string, user domain.User) (P, []C, error) {
	return e.remove(ctx, domain.OpDeleteByType, parentID, child.ByType(typ), false, user)
}

func DeleteByRelatedID[P any, C child.RelatedElement](ctx context.Context, e *Engine[P, C], parentID domain.EntityID, relatedID string, user domain.User) (P, []C, error) {
	return e.remove(ctx, domain.OpDeleteByRelatedID, parentID, child.ByRelatedID(relatedID), false, user)
}
