package trace

import "strings"

// Column is a bit set of named series columns.
type Column uint32

// Series columns. Names follow the standardised column names used by the
// normaliser and by downstream consumers.
const (
	ColTimestamp Column = 1 << iota
	ColLatitude
	ColLongitude
	ColAltitude
	ColGroundSpeed
	ColVerticalRate
	ColTrack
	ColFlags
	ColPhase
	ColLeg
	ColDistance
	ColFuelFlow
	ColFuel
	ColDt
	ColCO2Flow
	ColH2OFlow
	ColNOxFlow
)

// ColKinematics is the set of columns produced by a provider normaliser.
const ColKinematics = ColTimestamp | ColLatitude | ColLongitude | ColAltitude |
	ColGroundSpeed | ColVerticalRate | ColTrack

var columnOrder = []struct {
	col  Column
	name string
}{
	{ColTimestamp, "timestamp"},
	{ColLatitude, "latitude"},
	{ColLongitude, "longitude"},
	{ColAltitude, "altitude"},
	{ColGroundSpeed, "groundspeed"},
	{ColVerticalRate, "vertical_rate"},
	{ColTrack, "track"},
	{ColFlags, "flags"},
	{ColPhase, "phase"},
	{ColLeg, "leg"},
	{ColDistance, "distance"},
	{ColFuelFlow, "fuelflow"},
	{ColFuel, "fuel"},
	{ColDt, "dt"},
	{ColCO2Flow, "co2flow"},
	{ColH2OFlow, "h2oflow"},
	{ColNOxFlow, "noxflow"},
}

// Names returns the column names in the set, in canonical order.
func (c Column) Names() []string {
	var names []string
	for _, e := range columnOrder {
		if c&e.col != 0 {
			names = append(names, e.name)
		}
	}
	return names
}

func (c Column) String() string {
	return strings.Join(c.Names(), ",")
}

// ColumnByName looks up a column by its standardised name.
func ColumnByName(name string) (Column, bool) {
	for _, e := range columnOrder {
		if e.name == name {
			return e.col, true
		}
	}
	return 0, false
}
