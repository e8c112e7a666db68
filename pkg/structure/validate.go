package structure

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

// ValidationError lists the fields that kept a step from completing.
type ValidationError struct {
	Step   int
	Fields []model.FieldError
}

func (e *ValidationError) Error() string {
	ids := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		ids[i] = f.FieldID
	}
	return fmt.Sprintf("step %d: invalid fields: %s", e.Step, strings.Join(ids, ", "))
}

// Validate checks submitted values against the required entries and regex
// constraints of tc. Only fields that would be shown are checked: fields in
// fs that are not hidden and whose display conditions hold. stored supplies
// values the submission leaves out.
func Validate(tc *model.TypeConfig, fs model.Fieldset, values map[string][]string, stored *model.Node) []model.FieldError {
	lookup := func(id string) []string {
		if v, ok := values[id]; ok {
			return v
		}
		if stored != nil {
			if v, ok := stored.FieldValues(id); ok {
				return v
			}
		}
		return nil
	}
	shown := func(id string) bool {
		f, ok := fs[id]
		if !ok || f.Hidden {
			return false
		}
		return Displayed(f, lookup)
	}

	var errs []model.FieldError
	seen := map[string]bool{}
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		errs = append(errs, model.FieldError{FieldID: id, ESID: fs[id].ESID.Joined()})
	}

	for _, entry := range tc.Required {
		var candidates []string
		filled := false
		for _, id := range entry {
			if !shown(id) {
				continue
			}
			candidates = append(candidates, id)
			if !blank(lookup(id)) {
				filled = true
			}
		}
		if !filled {
			for _, id := range candidates {
				add(id)
			}
		}
	}

	for _, f := range fs.Ordered() {
		if f.Regex == "" || !shown(f.ID) {
			continue
		}
		re, err := regexp.Compile(f.Regex)
		if err != nil {
			add(f.ID)
			continue
		}
		if !matches(re, f, lookup(f.ID)) {
			add(f.ID)
		}
	}
	return errs
}

// Displayed reports whether every display condition of f holds for the
// values lookup returns. A controlling field without a value reads as "".
func Displayed(f *model.FieldDescriptor, lookup func(string) []string) bool {
	for watched, cond := range f.DisplayConditions {
		v := lookup(watched)
		value := ""
		if len(v) > 0 {
			value = v[0]
		}
		if !cond.Matches(value) {
			return false
		}
	}
	return true
}

func matches(re *regexp.Regexp, f *model.FieldDescriptor, values []string) bool {
	if blank(values) {
		return true
	}
	if !f.IsList() {
		return re.MatchString(strings.Join(values, ","))
	}
	for _, v := range values {
		for _, elem := range strings.Split(v, ",") {
			elem = strings.TrimSpace(elem)
			if elem != "" && !re.MatchString(elem) {
				return false
			}
		}
	}
	return true
}

func blank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
