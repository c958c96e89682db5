package domain

// Row is one sheet row keyed by column header.
type Row map[string]string

// Sheet is the raw content of the backing row store.
type Sheet struct {
	Headers []string
	Rows    []Row
}

// Clone returns a deep copy safe to hand to a background save.
func (s Sheet) Clone() Sheet {
	out := Sheet{
		Headers: append([]string(nil), s.Headers...),
		Rows:    make([]Row, len(s.Rows)),
	}
	for i, row := range s.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}
