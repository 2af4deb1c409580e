package scan

// Filter decides whether a file extension is excluded from backups.
// Matching is exact and case-sensitive; extensions include the leading dot
// as returned by filepath.Ext.
type Filter struct {
	excluded map[string]struct{}
}

func NewFilter(extensions []string) *Filter {
	excluded := make(map[string]struct{}, len(extensions))

	for _, ext := range extensions {
		if ext == "" {
			continue
		}
		excluded[ext] = struct{}{}
	}

	return &Filter{excluded: excluded}
}

func (f *Filter) IsExcluded(ext string) bool {
	if f == nil || ext == "" {
		return false
	}

	_, ok := f.excluded[ext]
	return ok
}
