package domain

// InstanceFilter narrows a candidate list before selection.
type InstanceFilter interface {
	Filter(instances []ServiceInstance) []ServiceInstance
	Name() string
}

// TagFilter keeps instances carrying every configured tag value.
type TagFilter struct {
	Tags map[string]string
}

// Filter returns the instances matching every tag, in input order
func (f *TagFilter) Filter(instances []ServiceInstance) []ServiceInstance {
	if len(f.Tags) == 0 {
		return instances
	}
	var kept []ServiceInstance
	for _, inst := range instances {
		if matchesTags(inst, f.Tags) {
			kept = append(kept, inst)
		}
	}
	return kept
}

// Name identifies the filter in logs
func (f *TagFilter) Name() string {
	return "tags"
}

func matchesTags(inst ServiceInstance, tags map[string]string) bool {
	for k, v := range tags {
		if inst.Tags[k] != v {
			return false
		}
	}
	return true
}
