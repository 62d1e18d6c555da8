package recurrence

import "hash/fnv"

// palette holds the calendar colors handed out to classes.
var palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
	"#393b79", "#637939", "#8c6d31", "#843c39", "#7b4173",
}

// Color maps a class ID onto the palette with FNV-1a, so the same class
// always gets the same color.
func Color(classID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(classID))
	return palette[h.Sum32()%uint32(len(palette))]
}
