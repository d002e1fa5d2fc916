package schema

// Kind identifies the shape of a Schema node. The set is closed: every
// switch over Kind in this package is exhaustive.
type Kind int

const (
	// KindAny is a schema without a declared type.
	KindAny Kind = iota
	KindObject
	KindArray
	KindString
	KindNumber
	KindInteger
	KindBoolean
	KindNull
	// KindComposite combines child schemas with an Operator.
	KindComposite
	// KindRef is a back-reference to a definition that is already being
	// expanded higher up in the tree.
	KindRef
)

func (k Kind) String() string {
	return []string{
		"any", "object", "array", "string", "number",
		"integer", "boolean", "null", "composite", "ref",
	}[k]
}

// Operator is the composition keyword of a composite node.
type Operator int

const (
	OpAllOf Operator = iota
	OpOneOf
	OpAnyOf
)

func (o Operator) String() string {
	return []string{"allOf", "oneOf", "anyOf"}[o]
}

// AdditionalPolicy records how an object schema treats undeclared keys.
// AdditionalUnspecified is kept distinct from AdditionalAllowed so the
// matcher can apply the caller's policy instead of guessing.
type AdditionalPolicy int

const (
	AdditionalUnspecified AdditionalPolicy = iota
	AdditionalAllowed
	AdditionalForbidden
	AdditionalSchema
)

func (p AdditionalPolicy) String() string {
	return []string{"unspecified", "allowed", "forbidden", "schema"}[p]
}

// Additional is the additionalProperties keyword of an object schema.
type Additional struct {
	Policy   AdditionalPolicy
	Schema   *Schema
	Location string
}

// Discriminator narrows oneOf/anyOf branches by a property value.
type Discriminator struct {
	PropertyName string
	// Mapping maps a property value to the $ref of a branch.
	Mapping map[string]string
}

// Schema is one node of a normalized schema tree.
type Schema struct {
	Kind Kind
	// Location is the dotted path of this node inside the specification,
	// e.g. "paths./users.post.requestBody.content.application/json.schema".
	Location string
	// Ref is the definition a KindRef node points at.
	Ref string
	// Origin is the $ref this node was expanded from, if any.
	Origin string

	Nullable  bool
	ReadOnly  bool
	WriteOnly bool
	Enum      []any
	Format    string
	Not       *Schema

	// String
	Pattern   string
	MinLength *uint64
	MaxLength *uint64

	// Number and integer
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum bool
	ExclusiveMaximum bool
	MultipleOf       *float64

	// Object
	Properties           map[string]*Schema
	Required             []string
	AdditionalProperties Additional
	MinProperties        *uint64
	MaxProperties        *uint64

	// Array
	Items       *Schema
	MinItems    *uint64
	MaxItems    *uint64
	UniqueItems bool

	// Composite
	Operator      Operator
	Children      []*Schema
	Discriminator *Discriminator
}

// Definitions maps a $ref to the schema tree it names. KindRef nodes are
// resolved through it.
type Definitions map[string]*Schema

// Resolve follows KindRef nodes until a concrete node is reached. It
// returns nil when a reference cannot be resolved or loops on itself.
func (d Definitions) Resolve(s *Schema) *Schema {
	seen := map[string]bool{}
	for s != nil && s.Kind == KindRef {
		if seen[s.Ref] {
			return nil
		}
		seen[s.Ref] = true
		s = d[s.Ref]
	}
	return s
}
