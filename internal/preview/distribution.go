package preview

// distribution groups matches by file in first-seen order and samples
// evenly across the groups, always including the first and last file.
// With no more groups than samples, every group is returned.
func distribution(matches []any, samples int) *Distribution {
	groups := groupByFile(matches)
	d := &Distribution{Distribution: make([]FileMatches, 0, min(len(groups), max(samples, 0)))}

	if len(groups) <= samples {
		d.Distribution = append(d.Distribution, groups...)
		return d
	}
	if samples <= 0 {
		return d
	}
	if samples == 1 {
		d.Distribution = append(d.Distribution, groups[0])
		return d
	}

	last := -1
	for i := range samples {
		idx := i * (len(groups) - 1) / (samples - 1)
		if idx == last {
			continue
		}
		d.Distribution = append(d.Distribution, groups[idx])
		last = idx
	}
	return d
}

// groupByFile counts matches per file, keeping the order files first appear in.
func groupByFile(matches []any) []FileMatches {
	index := make(map[string]int)
	var groups []FileMatches
	for _, m := range matches {
		file := matchFile(m)
		i, ok := index[file]
		if !ok {
			i = len(groups)
			index[file] = i
			groups = append(groups, FileMatches{File: file})
		}
		groups[i].Matches++
	}
	return groups
}

// matchFile returns the file a match belongs to.
func matchFile(m any) string {
	obj, ok := m.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"uri", "file"} {
		if s, ok := obj[key].(string); ok {
			return s
		}
	}
	if loc, ok := obj["location"].(map[string]any); ok {
		if s, ok := loc["uri"].(string); ok {
			return s
		}
	}
	return ""
}
