package model

// Closure returns the roots followed by every table they reach through foreign keys.
//
// Each table appears exactly once. Roots keep their first-seen order, and every root is
// explored depth-first before the next root is looked at, so a table appears right
// after the table which first references it. Cycles, including tables referencing
// themselves, terminate.
//
// Deferred references are resolved while they are traversed. A resolution error aborts
// the traversal and is returned unchanged.
func Closure(roots []*Table) ([]*Table, error) {
	output := []*Table{}
	seen := map[*Table]bool{}

	var visit func(table *Table) error
	visit = func(table *Table) error {
		for _, column := range table.foreignKeys {
			target, err := column.References.Resolve()
			if err != nil {
				return err
			}
			if seen[target] {
				continue
			}
			seen[target] = true
			output = append(output, target)
			if err := visit(target); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if root == nil || seen[root] {
			continue
		}
		seen[root] = true
		output = append(output, root)
		if err := visit(root); err != nil {
			return nil, err
		}
	}
	return output, nil
}
