package stock

// RegionOrder is the column order of the stock table.
var RegionOrder = []string{"OW", "NW", "EN", "AR", "CT"}

var regionNames = map[string]string{
	"OW": "Old World",
	"NW": "New World",
	"AR": "Arctic",
	"EN": "Enbesa",
	"CT": "Cape Trelawney",
}

// RegionName returns the display name of a region code, or the code itself.
func RegionName(code string) string {
	if name, ok := regionNames[code]; ok {
		return name
	}
	return code
}

// RegionRank orders regions by RegionOrder; unknown regions sort last.
func RegionRank(code string) int {
	for i, r := range RegionOrder {
		if r == code {
			return i
		}
	}
	return len(RegionOrder)
}
