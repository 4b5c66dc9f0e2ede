package logic

// Occupancy labels published on the occupancy topic.
const (
	LabelOccupied = "OCCUPIED"
	LabelVacant   = "VACANT"
)

// Occupancy is the number of people in the room. The zero value is an
// empty room.
type Occupancy struct {
	Count int
}

// Apply folds one crossing into the count. An exit from an empty room is
// clamped at zero; it means an earlier entry was missed or dropped.
func (o Occupancy) Apply(dir Direction) Occupancy {
	switch dir {
	case Entry:
		o.Count++
	case Exit:
		if o.Count > 0 {
			o.Count--
		}
	}
	return o
}

// Occupied reports whether anyone is in the room.
func (o Occupancy) Occupied() bool {
	return o.Count > 0
}

// Label returns OCCUPIED or VACANT.
func (o Occupancy) Label() string {
	return OccupancyLabel(o.Occupied())
}

// OccupancyLabel maps an occupied flag to its published label.
func OccupancyLabel(occupied bool) string {
	if occupied {
		return LabelOccupied
	}
	return LabelVacant
}
