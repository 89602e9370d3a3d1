package cache

// Naming derives versioned partition names. Exactly one version is current
// per deployment; partitions tagged with any other version are stale.
type Naming struct {
	Version string
}

func (n Naming) Static() string  { return "static-" + n.Version }
func (n Naming) Dynamic() string { return "dynamic-" + n.Version }
func (n Naming) API() string     { return "api-" + n.Version }

// Current returns the full set of partition names owned by this version.
func (n Naming) Current() []string {
	return []string{n.Static(), n.Dynamic(), n.API()}
}
