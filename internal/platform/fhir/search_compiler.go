package fhir

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ehr/fhirsearch/internal/platform/fhirtypes"
	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/internal/platform/searchparam"
)

// DefaultNativeDateFields are stored as BSON dates rather than strings.
// Entries are "ResourceType.path" or "*.path".
var DefaultNativeDateFields = []string{"*.meta.lastUpdated", "AuditEvent.recorded"}

// AccessIndexField prefixes the precomputed per-code access flags.
const AccessIndexField = "_access"

type options struct {
	logger        zerolog.Logger
	accessIndex   func(code string) bool
	accessSystems map[string]struct{}
	nativeDates   map[string]struct{}
	now           func() time.Time
	simplify      bool
}

// Option configures a Compiler.
type Option func(*options)

// WithLogger sets the logger used for skipped parameters.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAccessIndex enables the access-index shortcut for security tags.
// fn decides which codes have an index field; nil disables the shortcut.
func WithAccessIndex(fn func(code string) bool) Option {
	return func(o *options) { o.accessIndex = fn }
}

// WithAccessSystems adds code systems treated as access-tag systems, on
// top of any system whose last path segment is "access".
func WithAccessSystems(systems ...string) Option {
	return func(o *options) {
		for _, s := range systems {
			if s = strings.TrimSpace(s); s != "" {
				o.accessSystems[s] = struct{}{}
			}
		}
	}
}

// WithNativeDateFields replaces the set of natively typed date fields.
func WithNativeDateFields(fields ...string) Option {
	return func(o *options) {
		o.nativeDates = make(map[string]struct{}, len(fields))
		for _, f := range fields {
			if f = strings.TrimSpace(f); f != "" {
				o.nativeDates[f] = struct{}{}
			}
		}
	}
}

// WithClock sets the time source for approximate date matching.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSimplify toggles the final simplification pass (on by default).
func WithSimplify(on bool) Option {
	return func(o *options) { o.simplify = on }
}

func (o *options) isAccessSystem(system string) bool {
	if _, ok := o.accessSystems[system]; ok {
		return true
	}
	trimmed := strings.TrimRight(system, "/")
	i := strings.LastIndexByte(trimmed, '/')
	return i >= 0 && trimmed[i+1:] == "access"
}

func (o *options) isNativeDate(resourceType, path string) bool {
	if _, ok := o.nativeDates[resourceType+"."+path]; ok {
		return true
	}
	_, ok := o.nativeDates["*."+path]
	return ok
}

// Compiler turns FHIR search arguments into a document-store filter and a
// set of index hints. A Compiler is immutable and safe for concurrent use;
// every Compile call works on its own state.
type Compiler struct {
	registry *searchparam.Registry
	types    *fhirtypes.Resolver
	opts     options
}

// NewCompiler builds a compiler over a registry and field type table.
func NewCompiler(registry *searchparam.Registry, types *fhirtypes.Resolver, opts ...Option) (*Compiler, error) {
	if registry == nil {
		return nil, invalidConfig("", "search parameter registry is required")
	}
	if types == nil {
		return nil, invalidConfig("", "field type resolver is required")
	}
	c := &Compiler{
		registry: registry,
		types:    types,
		opts: options{
			logger:        zerolog.Nop(),
			accessSystems: make(map[string]struct{}),
			now:           time.Now,
			simplify:      true,
		},
	}
	WithNativeDateFields(DefaultNativeDateFields...)(&c.opts)
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c, nil
}

// Registry returns the registry the compiler reads.
func (c *Compiler) Registry() *searchparam.Registry { return c.registry }

// CompiledQuery is the result of one compile call.
type CompiledQuery struct {
	ResourceType string
	Filter       filter.Expr
	Hints        *filter.HintSet
}

// Columns returns the sorted index hint paths.
func (q *CompiledQuery) Columns() []string { return q.Hints.Sorted() }

// Document renders the filter for the document store.
func (q *CompiledQuery) Document() bson.D { return filter.Document(q.Filter) }

type argument struct {
	key       string
	name      string
	modifiers []SearchModifier
	value     any
}

// Compile compiles args for resourceType. Every registered parameter
// present in args contributes fragments that are AND-combined. Arguments
// without a registered parameter are skipped.
func (c *Compiler) Compile(resourceType string, args Args) (*CompiledQuery, error) {
	args = c.normalizeArgs(resourceType, args)
	hints := filter.NewHintSet()

	byName := make(map[string][]argument)
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, mods := ParseParamModifiers(k)
		byName[name] = append(byName[name], argument{key: k, name: name, modifiers: mods, value: args[k]})
	}

	defs := c.registry.ForResource(resourceType)
	if _, ok := byName["_id"]; ok {
		if _, registered := c.registry.Lookup(resourceType, "_id"); !registered {
			defs = append(defs, idDefinition)
		}
	}

	var frags []filter.Expr
	for _, def := range defs {
		for _, arg := range byName[def.Name] {
			exprs, err := c.compileArgument(resourceType, def, arg, hints)
			if err != nil {
				return nil, err
			}
			frags = append(frags, exprs...)
		}
		delete(byName, def.Name)
	}
	for name := range byName {
		c.opts.logger.Debug().Str("resource_type", resourceType).Str("param", name).Msg("search parameter not registered, skipping")
	}

	expr := filter.And(frags...)
	if c.opts.simplify {
		expr = filter.Simplify(expr)
	}
	return &CompiledQuery{ResourceType: resourceType, Filter: expr, Hints: hints}, nil
}

var idDefinition = &searchparam.Definition{Name: "_id", Field: "id", Type: searchparam.TypeID}

func (c *Compiler) compileArgument(resourceType string, def *searchparam.Definition, arg argument, hints *filter.HintSet) ([]filter.Expr, error) {
	d, err := newDispatchContext(resourceType, def, c.types, hints, &c.opts)
	if err != nil {
		return nil, err
	}

	negate := false
	var mods []SearchModifier
	for _, m := range arg.modifiers {
		switch m {
		case ModifierNot:
			negate = true
		case ModifierExact:
		case ModifierMissing, ModifierContains, ModifierAbove, ModifierBelow, ModifierText:
			mods = append(mods, m)
		case ModifierIdentifier:
			if def.Type != searchparam.TypeReference {
				c.skipModifier(resourceType, arg, m)
				continue
			}
			mods = append(mods, m)
		default:
			if def.Type == searchparam.TypeReference && isResourceTypeModifier(m) {
				d.typeModifier = string(m)
				continue
			}
			c.skipModifier(resourceType, arg, m)
		}
	}

	pv, err := normalizeValue(def, arg.value)
	if err != nil {
		return nil, err
	}

	if len(mods) == 0 {
		return c.compileValue(d, pv, negate)
	}

	values := pv.values()
	var out []filter.Expr
	for _, m := range mods {
		exprs := d.modifierFragments(m, values)
		out = append(out, negated(fragments{exprs: exprs}, negate)...)
	}
	return out, nil
}

func (c *Compiler) skipModifier(resourceType string, arg argument, m SearchModifier) {
	c.opts.logger.Debug().
		Str("resource_type", resourceType).
		Str("param", arg.key).
		Str("modifier", string(m)).
		Msg("unsupported search modifier, skipping")
}

// compileValue dispatches each group of a normalized value. Plain values
// and AND-groups go to the dispatcher as a list; an OR-group dispatches
// each value alone and ORs the results; the NOT-group is dispatched with
// the negation flipped.
func (c *Compiler) compileValue(d *dispatchContext, pv paramValue, negate bool) ([]filter.Expr, error) {
	var out []filter.Expr

	if len(pv.plain) > 0 {
		fr, err := c.dispatch(d, pv.plain, negate)
		if err != nil {
			return nil, err
		}
		out = append(out, negated(fr, negate)...)
	}

	switch {
	case len(pv.anyOf) == 1:
		fr, err := c.dispatch(d, pv.anyOf, negate)
		if err != nil {
			return nil, err
		}
		out = append(out, negated(fr, negate)...)
	case len(pv.anyOf) > 1:
		alts := make([]filter.Expr, 0, len(pv.anyOf))
		for _, v := range pv.anyOf {
			fr, err := c.dispatch(d, []string{v}, false)
			if err != nil {
				return nil, err
			}
			alts = append(alts, filter.And(fr.exprs...))
		}
		out = append(out, negated(fragments{exprs: []filter.Expr{filter.Or(alts...)}}, negate)...)
	}

	for _, group := range pv.allOf {
		fr, err := c.dispatch(d, group, negate)
		if err != nil {
			return nil, err
		}
		out = append(out, negated(fr, negate)...)
	}

	if len(pv.noneOf) > 0 {
		fr, err := c.dispatch(d, pv.noneOf, !negate)
		if err != nil {
			return nil, err
		}
		out = append(out, negated(fr, !negate)...)
	}

	if pv.missing != nil {
		v := "false"
		if *pv.missing {
			v = "true"
		}
		out = append(out, d.modifierFragments(ModifierMissing, []string{v})...)
	}
	return out, nil
}

// dispatch routes values to the dispatcher for the definition's type.
// _id always uses the id dispatcher.
func (c *Compiler) dispatch(d *dispatchContext, values []string, negate bool) (fragments, error) {
	if d.def.Name == "_id" {
		return d.idFragments(values, negate), nil
	}

	switch d.def.Type {
	case searchparam.TypeString:
		return fragments{exprs: d.stringFragments(values)}, nil
	case searchparam.TypeURI:
		return fragments{exprs: d.uriFragments(values)}, nil
	case searchparam.TypeID:
		return d.idFragments(values, negate), nil
	case searchparam.TypeToken:
		if d.isSecurityField() {
			return fragments{exprs: d.securityFragments(values)}, nil
		}
		return fragments{exprs: d.tokenFragments(values)}, nil
	case searchparam.TypeDate, searchparam.TypeDateTime, searchparam.TypeInstant,
		searchparam.TypePeriod, searchparam.TypeTiming:
		exprs, err := d.dateFragments(values)
		return fragments{exprs: exprs}, err
	case searchparam.TypeReference:
		return fragments{exprs: d.referenceFragments(values)}, nil
	case searchparam.TypeQuantity:
		return fragments{exprs: d.quantityFragments(values)}, nil
	case searchparam.TypeNumber:
		return fragments{exprs: d.numberFragments(values)}, nil
	case searchparam.TypeCanonical:
		return fragments{exprs: d.canonicalFragments(values)}, nil
	default:
		return fragments{}, &CompileError{
			Param:  d.def.Name,
			Detail: "type " + d.def.Type.String(),
			Err:    ErrUnsupportedParameterType,
		}
	}
}

// negated wraps each fragment in its own Nor when negate is set, unless
// the dispatcher already folded the negation in.
func negated(fr fragments, negate bool) []filter.Expr {
	if !negate || fr.negated {
		return fr.exprs
	}
	out := make([]filter.Expr, 0, len(fr.exprs))
	for _, e := range fr.exprs {
		out = append(out, filter.Nor(e))
	}
	return out
}
