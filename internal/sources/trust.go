package sources

// TrustTable maps normalized publisher names to trust levels.
type TrustTable struct {
	levels       map[string]int
	defaultLevel int
}

// NewTrustTable normalizes the keys of levels once.
func NewTrustTable(levels map[string]int, defaultLevel int) *TrustTable {
	normalized := make(map[string]int, len(levels))
	for name, level := range levels {
		normalized[NormalizeKey(name)] = level
	}
	return &TrustTable{levels: normalized, defaultLevel: defaultLevel}
}

// Level returns the trust level of source, or the default for unknown names.
func (t *TrustTable) Level(source string) int {
	if t == nil {
		return 0
	}
	if level, ok := t.levels[NormalizeSource(source)]; ok {
		return level
	}
	return t.defaultLevel
}

// DefaultLevel is the level assigned to unknown publishers.
func (t *TrustTable) DefaultLevel() int {
	if t == nil {
		return 0
	}
	return t.defaultLevel
}
