package core

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// AllowedOrderings drops every ordering whose field is not in `fields`.
// Returns `fallback` when nothing is left.
func AllowedOrderings(ords []DBOrdering, fallback DBOrdering, fields ...string) []DBOrdering {
	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f] = true
	}
	res := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		if allowed[ord.Field] {
			res = append(res, ord)
		}
	}
	if len(res) == 0 {
		return []DBOrdering{fallback}
	}
	return res
}
