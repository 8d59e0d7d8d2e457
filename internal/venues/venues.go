// Package venues holds the built-in list of observed locations.
package venues

import (
	"github.com/busyness-collector/internal/types"
)

var defaultVenues = []types.Venue{
	// Pentagon (Arlington, VA)
	{
		ID:   "pentagon_dominos",
		Name: "Domino's Pizza",
		Area: "Pentagon",
		URL:  "https://www.google.com/maps/place/Domino's+Pizza/@38.8627308,-77.0879692,17z/data=!3m1!4b1!4m6!3m5!1s0x89b7b6ba2b02a023:0x15622e1516edc315!8m2!3d38.8627267!4d-77.0853943!16s%2Fg%2F1wbryp46?entry=ttu&g_ep=EgoyMDI1MDYxNi4wIKXMDSoASAFQAw%3D%3D",
	},
	{
		ID:   "pentagon_extreme_pizza",
		Name: "Extreme Pizza",
		Area: "Pentagon",
		URL:  "https://www.google.com/maps/place/Extreme+Pizza/@38.8602396,-77.0585603,17z/data=!3m1!4b1!4m6!3m5!1s0x89b7b72778ab8871:0x3762c646ac6ddfe1!8m2!3d38.8602396!4d-77.0559854!16s%2Fg%2F12llsn19l?entry=ttu&g_ep=EgoyMDI1MDYxNi4wIKXMDSoASAFQAw%3D%3D",
	},
	{
		ID:   "pentagon_we_the_pizza",
		Name: "We, The Pizza",
		Area: "Pentagon",
		URL:  "https://www.google.com/maps/place/We,+The+Pizza/@38.8663614,-77.0588449,15.76z/data=!3m1!5s0x89b7b72f331803b7:0x7edf0a3adffa41c8!4m6!3m5!1s0x89b7b72f38e95a4b:0xc933eda7e98cbcb0!8m2!3d38.8551791!4d-77.049733!16s%2Fg%2F1q62g66vf?entry=ttu&g_ep=EgoyMDI1MDYxNi4wIKXMDSoASAFQAw%3D%3D",
	},
	{
		ID:   "pentagon_district_pizza",
		Name: "District Pizza Palace",
		Area: "Pentagon",
		URL:  "https://www.google.com/maps/place/District+Pizza+Palace/@38.8527414,-77.0531408,17z/data=!3m1!4b1!4m6!3m5!1s0x89b7b77b2d1e64e3:0x70a3f6ac71ef0a9c!8m2!3d38.8527414!4d-77.0531408!16s%2Fg%2F11vc1fb80v?entry=ttu&g_ep=EgoyMDI1MDYxNy4wIKXMDSoASAFQAw%3D%3D",
	},
	{
		ID:   "pentagon_papa_johns",
		Name: "Papa John's Pizza",
		Area: "Pentagon",
		URL:  "https://www.google.com/maps/place/Papa+Johns+Pizza/@38.8292633,-77.1901741,11.83z/data=!4m6!3m5!1s0x89b7b77f69c14da3:0xa3bad34a334f286f!8m2!3d38.8606821!4d-77.0922272!16s%2Fg%2F11t104lmtl?entry=ttu&g_ep=EgoyMDI1MDYxNy4wIKXMDSoASAFQAw%3D%3D",
	},
	{
		ID:   "pentagon_pizzato",
		Name: "Pizzato Pizza",
		Area: "Pentagon",
		URL:  "https://www.google.com/maps/place/Pizzato+Pizza/@38.8791607,-77.096414,15.18z/data=!4m6!3m5!1s0x89b7b709fda7b8ad:0x583383fdc3ad2c55!8m2!3d38.8806865!4d-77.089827!16s%2Fg%2F11v5zglw6h?entry=ttu&g_ep=EgoyMDI1MDYxNy4wIKXMDSoASAFQAw%3D%3D",
	},
	{
		ID:   "pentagon_freddies_beach",
		Name: "Freddie's Beach Bar",
		Area: "Pentagon",
		Type: types.VenueTypeInverse,
		URL:  "https://www.google.com/maps/place/Freddie's+Beach+Bar+%26+Restaurant/@38.8535526,-77.0597718,17z/data=!3m1!4b1!4m6!3m5!1s0x89b7b729bed81597:0xa202f769ed84c0e0!8m2!3d38.8535485!4d-77.0549009!16s%2Fg%2F1tjv4dg_?entry=ttu",
	},
	{
		ID:   "pentagon_little_gay_pub",
		Name: "The Little Gay Pub",
		Area: "Pentagon",
		Type: types.VenueTypeInverse,
		URL:  "https://www.google.com/maps/place/The+Little+Gay+Pub/@38.9094961,-77.0298976,17z/data=!3m1!4b1!4m6!3m5!1s0x89b7b793fb095049:0xa306f8e68ade8d07!8m2!3d38.909492!4d-77.0273227!16s%2Fg%2F11sjyh_kjn?entry=ttu",
	},

	// Mar-a-Lago (West Palm Beach, FL)
	{
		ID:   "maralago_lynoras",
		Name: "Lynora's Italian Kitchen",
		Area: "Mar-a-Lago",
		URL:  "https://www.google.com/maps/place/Lynora's/@26.7056,-80.0364,17z",
	},
	{
		ID:   "maralago_pizza_de_roma",
		Name: "Pizza De Roma",
		Area: "Mar-a-Lago",
		URL:  "https://www.google.com/maps/place/Pizza+De+Roma/@26.7072,-80.0356,17z",
	},
	{
		ID:   "maralago_taste_of_italy",
		Name: "Taste of Italy",
		Area: "Mar-a-Lago",
		URL:  "https://www.google.com/maps/place/Taste+of+Italy/@26.6881,-80.0364,17z",
	},

	// CIA (Langley, VA)
	{
		ID:   "cia_andys_tysons",
		Name: "Andy's Pizza Tyson's/McLean",
		Area: "CIA",
		URL:  "https://www.google.com/maps/place/Andy's+Pizza/@38.9178,-77.2253,17z",
	},
	{
		ID:   "cia_andpizza",
		Name: "&pizza",
		Area: "CIA",
		URL:  "https://www.google.com/maps/place/%26pizza/@38.9178,-77.2253,17z",
	},
	{
		ID:   "cia_andys_bethesda",
		Name: "Andy's Pizza Bethesda",
		Area: "CIA",
		URL:  "https://www.google.com/maps/place/Andy's+Pizza/@38.9847,-77.0947,17z",
	},

	// Control
	{
		ID:   "control_hayward",
		Name: "Pizza Station",
		Area: "Control",
		URL:  "https://www.google.com/maps/place/Pizza+Station/@37.6688,-122.0808,17z",
	},
	{
		ID:   "control_fort_worth",
		Name: "Mister O1 Extraordinary Pizza Alliance",
		Area: "Control",
		URL:  "https://www.google.com/maps/place/Mister+O1+Extraordinary+Pizza+Alliance/@32.7555,-97.3308,17z",
	},
	{
		ID:   "control_manhattan",
		Name: "Mimi's Pizza",
		Area: "Control",
		URL:  "https://www.google.com/maps/place/Mimi's+Pizza/@40.7128,-74.0060,17z",
	},
	{
		ID:   "control_tampa",
		Name: "Due Amici Pizza & Pasta Bar",
		Area: "Control",
		URL:  "https://www.google.com/maps/place/Due+Amici+Pizza+%26+Pasta+Bar/@27.9506,-82.4572,17z",
	},
	{
		ID:   "control_beaverton",
		Name: "Hapa Pizza",
		Area: "Control",
		URL:  "https://www.google.com/maps/place/Hapa+Pizza/@45.4871,-122.8037,17z",
	},
	{
		ID:   "control_chicago",
		Name: "Pizzeria Portofino",
		Area: "Control",
		URL:  "https://www.google.com/maps/place/Pizzeria+Portofino/@41.8819,-87.6278,17z",
	},
}

// Default returns a copy of the built-in venue list.
func Default() []types.Venue {
	out := make([]types.Venue, len(defaultVenues))
	copy(out, defaultVenues)
	return out
}

// Resolve returns configured when it is non-empty, the built-in list
// otherwise.
func Resolve(configured []types.Venue) []types.Venue {
	if len(configured) > 0 {
		return configured
	}
	return Default()
}

// Split groups venue indices by the collaborator that resolves them,
// keeping input order within each group.
func Split(venues []types.Venue) map[string][]int {
	groups := make(map[string][]int)
	for i, v := range venues {
		src := v.ResolvedBy()
		groups[src] = append(groups[src], i)
	}
	return groups
}
