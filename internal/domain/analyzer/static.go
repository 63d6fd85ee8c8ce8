package analyzer

// Static runs every snapshot-only detector in rubric order.
func Static(s Snapshot) []Result {
	out := []Result{
		FileSeparation(s),
		JQueryAjax(s),
		Bootstrap(s),
		PreparedStatements(s),
	}
	for _, r := range Databases(s) {
		out = append(out, r)
	}
	out = append(out, LocalStorage(s), FolderStructure(s))
	return out
}
