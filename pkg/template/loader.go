package template

// Loader resolves a template name used by {{ inline name }}.
type Loader interface {
	Load(name string) (*Template, error)
}

// MemoryLoader serves template sources from a map. Sources are parsed on
// every Load.
type MemoryLoader map[string]string

func (m MemoryLoader) Load(name string) (*Template, error) {
	src, ok := m[name]
	if !ok {
		return nil, newError(KindTemplateNotFound, name, Pos{}, "")
	}
	return ParseNamed(name, src)
}
