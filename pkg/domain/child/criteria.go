package child

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sipeed/picocrud/pkg/domain"
)

// ---------------------------------------------------------------------------
// Filter: predicate over one field value
// ---------------------------------------------------------------------------

// Filter holds the operators applied to a single field. Set operators are
// combined with AND; an empty filter matches any value.
type Filter struct {
	Eq     *string  `json:"eq,omitempty"`
	Ne     *string  `json:"ne,omitempty"`
	In     []string `json:"in,omitempty"`
	NotIn  []string `json:"nin,omitempty"`
	Exists *bool    `json:"exists,omitempty"`
}

func Eq(v string) *Filter { return &Filter{Eq: &v} }

func Ne(v string) *Filter { return &Filter{Ne: &v} }

func In(vs ...string) *Filter { return &Filter{In: vs} }

func NotIn(vs ...string) *Filter { return &Filter{NotIn: vs} }

func Exists(b bool) *Filter { return &Filter{Exists: &b} }

// Matches applies every set operator to value.
func (f *Filter) Matches(value string) bool {
	if f == nil {
		return true
	}
	if f.Eq != nil && value != *f.Eq {
		return false
	}
	if f.Ne != nil && value == *f.Ne {
		return false
	}
	if f.In != nil && !contains(f.In, value) {
		return false
	}
	if len(f.NotIn) > 0 && contains(f.NotIn, value) {
		return false
	}
	if f.Exists != nil && (value != "") != *f.Exists {
		return false
	}
	return true
}

func (f *Filter) String() string {
	if f == nil {
		return "*"
	}
	var parts []string
	if f.Eq != nil {
		parts = append(parts, "="+*f.Eq)
	}
	if f.Ne != nil {
		parts = append(parts, "!="+*f.Ne)
	}
	if f.In != nil {
		parts = append(parts, " in ["+strings.Join(f.In, " ")+"]")
	}
	if len(f.NotIn) > 0 {
		parts = append(parts, " not in ["+strings.Join(f.NotIn, " ")+"]")
	}
	if f.Exists != nil {
		parts = append(parts, " exists="+strconv.FormatBool(*f.Exists))
	}
	return strings.Join(parts, " and")
}

func contains(vs []string, v string) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Criteria: the matcher used by every find/replace/remove
// ---------------------------------------------------------------------------

// Criteria filters child elements on id and natural keys. Unset fields are
// ignored, so the zero value matches every element. A filter on a field the
// element kind does not expose never matches.
type Criteria struct {
	ID        *Filter `json:"id,omitempty"`
	Name      *Filter `json:"name,omitempty"`
	Key       *Filter `json:"key,omitempty"`
	Type      *Filter `json:"type,omitempty"`
	RelatedID *Filter `json:"related_id,omitempty"`
}

func ByID(id domain.EntityID) Criteria { return Criteria{ID: Eq(string(id))} }

func ByName(name string) Criteria { return Criteria{Name: Eq(name)} }

func ByKey(key string) Criteria { return Criteria{Key: Eq(key)} }

func ByType(typ string) Criteria { return Criteria{Type: Eq(typ)} }

func ByRelatedID(relatedID string) Criteria { return Criteria{RelatedID: Eq(relatedID)} }

// By builds single-field equality criteria.
func By(f Field, value string) Criteria {
	var c Criteria
	c.Set(f, Eq(value))
	return c
}

// Get returns the filter for f, or nil.
func (c Criteria) Get(f Field) *Filter {
	switch f {
	case FieldID:
		return c.ID
	case FieldName:
		return c.Name
	case FieldKey:
		return c.Key
	case FieldType:
		return c.Type
	case FieldRelatedID:
		return c.RelatedID
	}
	return nil
}

// Set replaces the filter for f.
func (c *Criteria) Set(f Field, flt *Filter) {
	switch f {
	case FieldID:
		c.ID = flt
	case FieldName:
		c.Name = flt
	case FieldKey:
		c.Key = flt
	case FieldType:
		c.Type = flt
	case FieldRelatedID:
		c.RelatedID = flt
	}
}

// Fields returns the fields that carry a filter.
func (c Criteria) Fields() []Field {
	var out []Field
	for _, f := range AllFields() {
		if c.Get(f) != nil {
			out = append(out, f)
		}
	}
	return out
}

func (c Criteria) IsEmpty() bool { return len(c.Fields()) == 0 }

// IsMatching reports whether e satisfies every filter.
func (c Criteria) IsMatching(e Element) bool {
	for _, f := range c.Fields() {
		v, ok := Value(e, f)
		if !ok || !c.Get(f).Matches(v) {
			return false
		}
	}
	return true
}

func (c Criteria) String() string {
	fields := c.Fields()
	if len(fields) == 0 {
		return "{}"
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f) + c.Get(f).String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// For narrows c to a Specification over a concrete element type.
func For[C Element](c Criteria) domain.Specification[C] {
	return domain.SpecFunc[C](func(candidate C) bool { return c.IsMatching(candidate) })
}

// ParseQuery builds criteria from URL query values:
//
//	name=x          equality
//	name.ne=x       inequality
//	name.in=a,b     membership
//	name.nin=a,b    exclusion
//	name.exists=1   presence of a non-empty value
//
// Parameters that do not name a field are ignored.
func ParseQuery(q url.Values) (Criteria, error) {
	return parseQuery(q, false)
}

// ParseStrictQuery is ParseQuery for mutating calls: a parameter that does
// not name a field is a bad request rather than being dropped.
func ParseStrictQuery(q url.Values) (Criteria, error) {
	return parseQuery(q, true)
}

func parseQuery(q url.Values, strict bool) (Criteria, error) {
	var c Criteria
	for param, values := range q {
		if len(values) == 0 {
			continue
		}
		name, op, _ := strings.Cut(param, ".")
		f, err := ParseField(name)
		if err != nil {
			if strict {
				return Criteria{}, domain.BadRequestf("unknown criteria parameter %q", param)
			}
			continue
		}
		flt := c.Get(f)
		if flt == nil {
			flt = &Filter{}
		}
		v := values[0]
		switch op {
		case "", "eq":
			flt.Eq = &v
		case "ne":
			flt.Ne = &v
		case "in":
			flt.In = splitList(v)
		case "nin":
			flt.NotIn = splitList(v)
		case "exists":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Criteria{}, domain.BadRequestf("%s: %v", param, err)
			}
			flt.Exists = &b
		default:
			return Criteria{}, domain.BadRequestf("unknown operator %q on %s", op, name)
		}
		c.Set(f, flt)
	}
	return c, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Unsupported returns an error when c filters on a field kind k cannot be
// addressed by.
func (c Criteria) Unsupported(k Kind) error {
	for _, f := range c.Fields() {
		if !k.Supports(f) {
			return domain.BadRequestf("%s cannot be filtered by %s", k, f)
		}
	}
	return nil
}

var _ fmt.Stringer = Criteria{}
