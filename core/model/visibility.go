package model

// ResolveColumns returns the subset of all which is exposed in a view.
//
// A non-empty include list wins when exclude is empty and is returned as given. A
// non-empty exclude list, with include empty, removes every column of all whose name
// is excluded and keeps the order of all. In every other case all is returned. Nil and
// empty lists both count as unset. Callers reject include and exclude being set at
// the same time before they get here.
func ResolveColumns(all, include, exclude []*Column) []*Column {
	if len(include) > 0 && len(exclude) == 0 {
		return include
	}
	if len(exclude) > 0 && len(include) == 0 {
		excluded := make(map[string]bool, len(exclude))
		for _, c := range exclude {
			excluded[c.Name] = true
		}
		result := make([]*Column, 0, len(all))
		for _, c := range all {
			if !excluded[c.Name] {
				result = append(result, c)
			}
		}
		return result
	}
	return all
}

// ColumnNames returns the names of columns
func ColumnNames(columns []*Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}
