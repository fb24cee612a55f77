package projector

import "sort"

// Groups names sets of class ids. Sets may overlap.
type Groups map[string][]int

// Names returns the group names in ascending order.
func (g Groups) Names() []string {
	names := make([]string, 0, len(g))
	for n := range g {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Of returns the names of the groups classID belongs to, in ascending order.
func (g Groups) Of(classID int) []string {
	var out []string
	for _, n := range g.Names() {
		for _, id := range g[n] {
			if id == classID {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// Group sorts detections into the named groups by class id.
//
// A detection is copied into every group that lists its class, so it may
// appear in none, one or several groups. Each group keeps the order of dets.
// Every group name is present in the result, with an empty slice when nothing
// matched.
//
// Arguments:
//   - dets: The detections, highest score first.
//   - groups: The group definitions.
//
// Returns:
//   - map[string][]Detection: The detections of each group.
func Group(dets []Detection, groups Groups) map[string][]Detection {
	out := make(map[string][]Detection, len(groups))
	for name := range groups {
		out[name] = []Detection{}
	}
	for _, d := range dets {
		for _, name := range groups.Of(d.ClassID) {
			out[name] = append(out[name], d)
		}
	}
	return out
}
