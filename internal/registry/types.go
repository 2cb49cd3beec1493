package registry

// Kind classifies what sort of shared resource an id names.
type Kind string

const (
	KindModel      Kind = "model"
	KindDependency Kind = "dependency"
	KindConfigKey  Kind = "config-key"
	KindTool       Kind = "tool"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindModel, KindDependency, KindConfigKey, KindTool:
		return true
	}
	return false
}

// Status tracks a resource's lifecycle. Removed resources stay in the
// registry so old reports remain interpretable.
type Status string

const (
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
	StatusRemoved    Status = "removed"
)

// Severity ranks how serious breaking a reference site would be.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank returns a numeric order for sorting, highest severity first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Resource is a registered shared resource other files may reference.
type Resource struct {
	ID        string `yaml:"id" json:"id"`
	Kind      Kind   `yaml:"kind" json:"kind"`
	Status    Status `yaml:"status" json:"status"`
	FirstSeen string `yaml:"first_seen,omitempty" json:"first_seen,omitempty"`
	UpdatedAt string `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// ReferenceSite records one textual occurrence of a resource id. Sites hold
// the resource id by value, not by pointer: the resource may later be marked
// removed while the site record persists for reporting.
type ReferenceSite struct {
	ResourceID string   `yaml:"resource_id" json:"resource_id"`
	File       string   `yaml:"file" json:"file"`
	Line       int      `yaml:"line" json:"line"`
	Column     int      `yaml:"column,omitempty" json:"column,omitempty"`
	Context    string   `yaml:"context" json:"context"`
	Pattern    string   `yaml:"pattern" json:"pattern"`
	Severity   Severity `yaml:"severity" json:"severity"`
}
