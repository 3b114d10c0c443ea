package child

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picocrud/pkg/domain"
)

func TestCriteriaMatching(t *testing.T) {
	email := &ContactMedium{ID: "c1", Name: "work", Type: "email", Value: "a@b.c"}
	phone := &ContactMedium{ID: "c2", Name: "home", Type: "phone"}
	char := &Characteristic{ID: "k1", Key: "color", Value: "red"}

	tests := []struct {
		name     string
		criteria Criteria
		elem     Element
		want     bool
	}{
		{"empty matches all", Criteria{}, email, true},
		{"by id", ByID("c1"), email, true},
		{"by id miss", ByID("c1"), phone, false},
		{"by name", ByName("home"), phone, true},
		{"by type", ByType("email"), email, true},
		{"by key", ByKey("color"), char, true},
		{"unexposed field never matches", ByName("color"), char, false},
		{"ne", Criteria{Type: Ne("email")}, phone, true},
		{"in", Criteria{ID: In("c2", "c3")}, phone, true},
		{"nin", Criteria{ID: NotIn("c2")}, phone, false},
		{"exists", Criteria{Name: Exists(true)}, email, true},
		{"all fields must hold", Criteria{Name: Eq("work"), Type: Eq("phone")}, email, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.IsMatching(tt.elem))
		})
	}
}

func TestForNarrowsToConcreteType(t *testing.T) {
	spec := For[*ContactMedium](ByName("work"))
	assert.True(t, spec.IsMatching(&ContactMedium{Name: "work"}))
	assert.False(t, spec.IsMatching(&ContactMedium{Name: "home"}))

	var _ domain.Specification[*ContactMedium] = spec
}

func TestParseQuery(t *testing.T) {
	q := url.Values{
		"name":      {"work"},
		"type.in":   {"email, phone"},
		"relatedId": {"r-1"},
		"page":      {"2"},
	}
	c, err := ParseQuery(q)
	require.NoError(t, err)

	require.NotNil(t, c.Name)
	assert.Equal(t, "work", *c.Name.Eq)
	assert.Equal(t, []string{"email", "phone"}, c.Type.In)
	assert.Equal(t, "r-1", *c.RelatedID.Eq)
	assert.Nil(t, c.ID)
	assert.Equal(t, []Field{FieldName, FieldType, FieldRelatedID}, c.Fields())
}

func TestParseQueryRejectsBadOperator(t *testing.T) {
	_, err := ParseQuery(url.Values{"name.like": {"w%"}})
	require.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = ParseQuery(url.Values{"name.exists": {"maybe"}})
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestParseStrictQueryRejectsUnknownParameters(t *testing.T) {
	_, err := ParseStrictQuery(url.Values{"nmae": {"work"}})
	require.ErrorIs(t, err, domain.ErrBadRequest)

	c, err := ParseStrictQuery(url.Values{"name.ne": {"work"}})
	require.NoError(t, err)
	assert.Equal(t, []Field{FieldName}, c.Fields())
}

func TestCriteriaString(t *testing.T) {
	assert.Equal(t, "{}", Criteria{}.String())
	assert.Equal(t, "{name=work, type in [email phone]}", Criteria{Name: Eq("work"), Type: In("email", "phone")}.String())
}

func TestKindNaturalKeys(t *testing.T) {
	assert.True(t, KindCharacteristic.Supports(FieldKey))
	assert.False(t, KindCharacteristic.Supports(FieldName))
	assert.True(t, KindContactMedium.Supports(FieldType))
	assert.True(t, KindRelatedDomain.Supports(FieldRelatedID))
	assert.True(t, KindRelatedAction.Supports(FieldID))

	require.ErrorIs(t, ByName("x").Unsupported(KindCharacteristic), domain.ErrBadRequest)
	require.NoError(t, ByKey("x").Unsupported(KindCharacteristic))

	_, err := ParseKind("hobby")
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestValidate(t *testing.T) {
	require.ErrorIs(t, (&Characteristic{}).Validate(), domain.ErrBadRequest)
	require.ErrorIs(t, (&ContactMedium{Name: "work"}).Validate(), domain.ErrBadRequest)
	require.NoError(t, (&ContactMedium{Name: "work", Type: "email"}).Validate())
	require.ErrorIs(t, (&RelatedObject{}).Validate(), domain.ErrBadRequest)
}
