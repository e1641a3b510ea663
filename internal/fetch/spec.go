package fetch

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/db"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Spec selects what to fetch: node display names across projects in the open
// time window (Start, Stop).
type Spec struct {
	Projects []string  `validate:"required,min=1,dive,project"`
	NodeIDs  []string  `validate:"required,min=1,dive,required"`
	Start    time.Time `validate:"required"`
	Stop     time.Time `validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("project", func(fl validator.FieldLevel) bool {
		return db.ValidateProject(fl.Field().String()) == nil
	})
	return v
}

// Normalize returns a copy with trimmed, de-duplicated and sorted projects and
// node ids. Sorted project order is the order queries run and rows are merged.
func (s Spec) Normalize() Spec {
	s.Projects = uniqueSorted(s.Projects)
	s.NodeIDs = uniqueSorted(s.NodeIDs)
	return s
}

func (s Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid query spec: %w", err)
	}
	return nil
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// specFile is the YAML layout of a query spec file.
type specFile struct {
	Projects  []string `yaml:"projects"`
	NodeIDs   []string `yaml:"node_ids"`
	TimeStart string   `yaml:"time_start"`
	TimeStop  string   `yaml:"time_stop"`
}

// LoadSpec reads a query spec from a YAML file.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("failed to read query spec: %w", err)
	}

	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Spec{}, fmt.Errorf("failed to parse query spec %s: %w", path, err)
	}

	spec := Spec{Projects: f.Projects, NodeIDs: f.NodeIDs}
	if f.TimeStart != "" {
		if spec.Start, err = ParseTime(f.TimeStart); err != nil {
			return Spec{}, fmt.Errorf("invalid time_start in %s: %w", path, err)
		}
	}
	if f.TimeStop != "" {
		if spec.Stop, err = ParseTime(f.TimeStop); err != nil {
			return Spec{}, fmt.Errorf("invalid time_stop in %s: %w", path, err)
		}
	}
	return spec, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts a date, a date-time without zone (read as UTC), or RFC 3339.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q (want YYYY-MM-DD, YYYY-MM-DD HH:MM:SS or RFC 3339)", s)
}
