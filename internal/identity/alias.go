package identity

import "hash/fnv"

var aliasAdjectives = []string{
	"Curious", "Steady", "Patient", "Eager", "Quiet", "Bright", "Swift", "Bold",
	"Gentle", "Keen", "Lucky", "Calm", "Clever", "Honest", "Vivid", "Nimble",
	"Warm", "Subtle", "Brisk", "Candid", "Daring", "Earnest", "Frank", "Grand",
	"Humble", "Jolly", "Loyal", "Merry", "Noble", "Prime", "Rapid", "Sharp",
	"Sleek", "Solid", "Stark", "Sunny", "Tidy", "Vast", "Wise", "Zesty",
}

var aliasNouns = []string{
	"Harbor", "Meadow", "Summit", "Canyon", "Orchard", "Lagoon", "Prairie", "Glacier",
	"Thicket", "Estuary", "Mesa", "Fjord", "Atoll", "Dune", "Grove", "Basin",
	"Cove", "Delta", "Ridge", "Tundra", "Marsh", "Cliff", "Plateau", "Brook",
	"Cascade", "Inlet", "Knoll", "Lagune", "Oasis", "Quarry", "Reef", "Savanna",
	"Shoal", "Strait", "Terrace", "Valley", "Wetland", "Willow", "Zephyr", "Bluff",
}

// CustomerAlias returns an anonymized display name for the given customer id.
// Raw anonymous signatures are unreadable in the journey explorer; the alias
// gives operators something human to talk about without exposing identity.
func CustomerAlias(customerID string) string {
	h := fnv.New32a()
	h.Write([]byte(customerID))
	index := int(h.Sum32())

	adjIndex := index % len(aliasAdjectives)
	nounIndex := (index / len(aliasAdjectives)) % len(aliasNouns)

	return aliasAdjectives[adjIndex] + " " + aliasNouns[nounIndex]
}
