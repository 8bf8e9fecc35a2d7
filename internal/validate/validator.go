// Package validate parses raw LLM responses and checks them against the
// schema registry and the per-stage business rules.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spherical/slide-creator/internal/schema"
)

// Rules holds the business thresholds. They are heuristics and come from configuration.
type Rules struct {
	MaxConcepts   int
	MinConfidence float64
	MaxConfidence float64
	MinSlides     int
	MaxSlides     int
	MaxBullets    int
	MaxTitleWords int
}

// DefaultRules returns the thresholds used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		MaxConcepts:   20,
		MinConfidence: 0.0,
		MaxConfidence: 1.0,
		MinSlides:     3,
		MaxSlides:     20,
		MaxBullets:    8,
		MaxTitleWords: 12,
	}
}

// Option configures a Validator.
type Option func(*Validator)

// WithRules overrides the business thresholds.
func WithRules(r Rules) Option {
	return func(v *Validator) { v.rules = r }
}

// WithStrictJSON disables recovery of JSON embedded in prose.
func WithStrictJSON(strict bool) Option {
	return func(v *Validator) { v.strict = strict }
}

// WithRegistry replaces the default schema registry.
func WithRegistry(reg *schema.Registry) Option {
	return func(v *Validator) { v.registry = reg }
}

// Validator is stateless after construction and safe for concurrent use.
type Validator struct {
	registry *schema.Registry
	rules    Rules
	strict   bool
}

// New creates a Validator backed by the default registry.
func New(opts ...Option) *Validator {
	v := &Validator{
		registry: schema.Default(),
		rules:    DefaultRules(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Rules returns the configured thresholds.
func (v *Validator) Rules() Rules { return v.rules }

// Validate parses raw and checks it against the named schema.
func (v *Validator) Validate(raw, schemaName string) Result {
	res := newResult()

	data, warnings, err := v.Parse(raw)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		res.fail(RuleParse, "", fmt.Sprintf("Invalid JSON format: %v", err))
		return res.finish()
	}

	res.Data = data
	v.check(&res, data, schemaName)
	return res.finish()
}

// ValidateParsed checks already parsed data against the named schema.
func (v *Validator) ValidateParsed(data interface{}, schemaName string) Result {
	res := newResult()
	res.Data = data
	v.check(&res, data, schemaName)
	return res.finish()
}

func (v *Validator) check(res *Result, data interface{}, schemaName string) {
	s, err := v.registry.Get(schemaName)
	if err != nil {
		res.warn("No schema defined for type: " + schemaName)
		return
	}

	obj, ok := data.(map[string]interface{})
	if !ok {
		res.fail(RuleShape, schemaName, fmt.Sprintf("%s: Expected JSON object, got %s", schemaName, jsonType(data)))
		return
	}

	checkObject(res, s, obj, schemaName)

	switch schemaName {
	case schema.Concepts:
		v.conceptRules(res, obj)
	case schema.Slides:
		v.slideRules(res, obj)
	}
}

func checkObject(res *Result, s *schema.Schema, obj map[string]interface{}, ctx string) {
	if gate := s.Gate(); gate != "" {
		if on, ok := obj[gate].(bool); ok && !on {
			return
		}
	}

	for _, f := range s.Fields() {
		name := f.Name()
		path := ctx + "." + name

		val, present := obj[name]
		if !present {
			if f.Required() {
				res.fail(RuleRequired, path, fmt.Sprintf("%s: Missing required field '%s'", ctx, name))
			}
			continue
		}
		if val == nil && !f.Required() {
			continue
		}

		if !matches(val, f.Type()) {
			res.fail(RuleType, path, fmt.Sprintf("%s: Field '%s' has incorrect type. Expected %s, got %s",
				ctx, name, f.Type(), jsonType(val)))
			continue
		}

		if str, ok := val.(string); ok && !f.Allows(str) {
			res.fail(RuleEnum, path, fmt.Sprintf("%s: Field '%s' has invalid value '%s'. Valid values: [%s]",
				ctx, name, str, strings.Join(f.Enum(), ", ")))
		}

		nested := f.Nested()
		if nested == nil {
			continue
		}
		switch tv := val.(type) {
		case []interface{}:
			for i, item := range tv {
				itemCtx := fmt.Sprintf("%s.%s[%d]", ctx, name, i)
				m, ok := item.(map[string]interface{})
				if !ok {
					res.fail(RuleShape, itemCtx, fmt.Sprintf("%s: Expected JSON object, got %s", itemCtx, jsonType(item)))
					continue
				}
				checkObject(res, nested, m, itemCtx)
			}
		case map[string]interface{}:
			checkObject(res, nested, tv, path)
		}
	}
}

func (v *Validator) conceptRules(res *Result, obj map[string]interface{}) {
	concepts, ok := obj["concepts"].([]interface{})
	if !ok {
		return
	}

	switch n := len(concepts); {
	case n > v.rules.MaxConcepts:
		res.fail(RuleConceptCount, "concepts", fmt.Sprintf("Too many concepts extracted (>%d). Consider consolidation.", v.rules.MaxConcepts))
	case n == 0:
		res.fail(RuleConceptCount, "concepts", "No concepts extracted. This may indicate processing failure.")
	}

	if score, ok := number(obj["overall_confidence_score"]); ok {
		if score < v.rules.MinConfidence || score > v.rules.MaxConfidence {
			res.fail(RuleConfidenceRange, "overall_confidence_score", fmt.Sprintf("Confidence score %s outside valid range [%.1f, %.1f]",
				strconv.FormatFloat(score, 'f', -1, 64), v.rules.MinConfidence, v.rules.MaxConfidence))
		}
	}

	seen := make(map[string]bool)
	var dups []string
	for _, c := range concepts {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		id, ok := m["id"].(string)
		if !ok {
			continue
		}
		if seen[id] {
			dups = append(dups, id)
		}
		seen[id] = true
	}
	if len(dups) > 0 {
		res.fail(RuleDuplicateID, "concepts", "Duplicate concept IDs found: "+strings.Join(dups, ", "))
	}

	for _, viol := range idViolations(concepts) {
		res.fail(viol.Rule, viol.Path, viol.Message)
	}
}

// CheckIDConsistency returns one error per relationship whose
// related_concept_id does not name a concept of the same response.
func CheckIDConsistency(data interface{}) []string {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	concepts, ok := obj["concepts"].([]interface{})
	if !ok {
		return nil
	}
	return Messages(idViolations(concepts))
}

func idViolations(concepts []interface{}) []Violation {
	ids := make(map[string]bool)
	for _, c := range concepts {
		if m, ok := c.(map[string]interface{}); ok {
			if id, ok := m["id"].(string); ok {
				ids[id] = true
			}
		}
	}

	var out []Violation
	for i, c := range concepts {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		rels, ok := m["relationships"].([]interface{})
		if !ok {
			continue
		}
		for j, r := range rels {
			rel, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			target, _ := rel["related_concept_id"].(string)
			if target == "" || ids[target] {
				continue
			}
			path := fmt.Sprintf("Concept[%d].relationships[%d]", i, j)
			out = append(out, Violation{
				Rule:    RuleUnresolvedReference,
				Path:    path,
				Message: fmt.Sprintf("%s: References non-existent concept ID '%s'", path, target),
			})
		}
	}
	return out
}

func (v *Validator) slideRules(res *Result, obj map[string]interface{}) {
	slides, ok := obj["slides"].([]interface{})
	if !ok {
		return
	}
	actual := len(slides)

	if reported, ok := integer(obj["number_of_slides"]); ok && reported != actual {
		res.fail(RuleSlideCount, "number_of_slides", fmt.Sprintf("Slide count mismatch: expected %d, got %d", reported, actual))
	}

	switch {
	case actual > v.rules.MaxSlides:
		res.fail(RuleDeckLength, "slides", fmt.Sprintf("Presentation too long (>%d slides). Consider reducing content.", v.rules.MaxSlides))
	case actual < v.rules.MinSlides:
		res.fail(RuleDeckLength, "slides", fmt.Sprintf("Presentation too short (<%d slides). May need more content.", v.rules.MinSlides))
	}

	for i, s := range slides {
		slide, ok := s.(map[string]interface{})
		if !ok {
			continue
		}
		path := fmt.Sprintf("slides[%d]", i)

		bullets, _ := slide["bullet_points"].([]interface{})
		switch {
		case len(bullets) > v.rules.MaxBullets:
			res.fail(RuleBulletCount, path, fmt.Sprintf("Slide %d: Too many bullet points (%d). Max recommended: %d", i, len(bullets), v.rules.MaxBullets))
		case len(bullets) == 0:
			res.fail(RuleBulletCount, path, fmt.Sprintf("Slide %d: No bullet points provided", i))
		}

		title, _ := slide["title"].(string)
		if words := len(strings.Fields(title)); words > v.rules.MaxTitleWords {
			res.fail(RuleTitleLength, path, fmt.Sprintf("Slide %d: Title too long (%d words). Max recommended: %d", i, words, v.rules.MaxTitleWords))
		}

		if placeholder, ok := slide["generated_visual_placeholder"].(map[string]interface{}); ok {
			need, _ := placeholder["need_image"].(bool)
			source, _ := placeholder["source_text_for_visual"].(string)
			if need && strings.TrimSpace(source) == "" {
				res.fail(RuleVisualSource, path, fmt.Sprintf("Slide %d: Visual needed but no source text provided", i))
			}
		}
	}
}

func matches(val interface{}, t schema.FieldType) bool {
	switch t {
	case schema.TypeString:
		_, ok := val.(string)
		return ok
	case schema.TypeInteger:
		_, ok := integer(val)
		return ok
	case schema.TypeFloat:
		_, ok := number(val)
		return ok
	case schema.TypeBoolean:
		_, ok := val.(bool)
		return ok
	case schema.TypeList:
		_, ok := val.([]interface{})
		return ok
	case schema.TypeMapping:
		_, ok := val.(map[string]interface{})
		return ok
	case schema.TypeNullableMapping:
		if val == nil {
			return true
		}
		_, ok := val.(map[string]interface{})
		return ok
	}
	return true
}

func number(val interface{}) (float64, bool) {
	switch n := val.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// integer accepts whole numbers. A JSON literal must be written without a
// fraction or exponent, so 3.0 is a float.
func integer(val interface{}) (int, bool) {
	if n, ok := val.(json.Number); ok {
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	f, ok := number(val)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func jsonType(val interface{}) string {
	switch val.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "mapping"
	}
	if _, ok := integer(val); ok {
		return "integer"
	}
	if _, ok := number(val); ok {
		return "float"
	}
	return fmt.Sprintf("%T", val)
}
