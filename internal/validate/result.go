package validate

// Rule identifies the check that produced a violation.
type Rule string

const (
	RuleParse               Rule = "parse"
	RuleRequired            Rule = "required"
	RuleType                Rule = "type"
	RuleEnum                Rule = "enum"
	RuleShape               Rule = "shape"
	RuleConceptCount        Rule = "concept_count"
	RuleConfidenceRange     Rule = "confidence_range"
	RuleDuplicateID         Rule = "duplicate_id"
	RuleUnresolvedReference Rule = "unresolved_reference"
	RuleSlideCount          Rule = "slide_count"
	RuleDeckLength          Rule = "deck_length"
	RuleBulletCount         Rule = "bullet_count"
	RuleTitleLength         Rule = "title_length"
	RuleVisualSource        Rule = "visual_source"
)

// Violation is one typed error of a Result.
type Violation struct {
	Rule    Rule   `json:"rule"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of validating one response.
// Valid is true exactly when Errors is empty.
type Result struct {
	Valid      bool        `json:"valid"`
	Errors     []string    `json:"errors"`
	Warnings   []string    `json:"warnings"`
	Data       interface{} `json:"data,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

func newResult() Result {
	return Result{Errors: []string{}, Warnings: []string{}}
}

func (r *Result) fail(rule Rule, path, message string) {
	r.Errors = append(r.Errors, message)
	r.Violations = append(r.Violations, Violation{Rule: rule, Path: path, Message: message})
}

func (r *Result) warn(message string) {
	r.Warnings = append(r.Warnings, message)
}

func (r Result) finish() Result {
	r.Valid = len(r.Errors) == 0
	return r
}

// Has reports whether any violation was produced by rule.
func (r Result) Has(rule Rule) bool {
	for _, v := range r.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// Matching returns the violations produced by any of rules.
func (r Result) Matching(rules ...Rule) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		for _, rule := range rules {
			if v.Rule == rule {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// Excluding returns the violations not produced by any of rules.
func (r Result) Excluding(rules ...Rule) []Violation {
	var out []Violation
outer:
	for _, v := range r.Violations {
		for _, rule := range rules {
			if v.Rule == rule {
				continue outer
			}
		}
		out = append(out, v)
	}
	return out
}

// Messages flattens violations into their messages.
func Messages(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Message)
	}
	return out
}
