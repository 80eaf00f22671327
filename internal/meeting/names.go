package meeting

// DefaultNames is the built-in catalog.
var DefaultNames = []string{
	"Quarterly Pint Review",
	"Hops Alignment Sync",
	"Liquid Assets Audit",
	"Cross-Functional Ale Summit",
	"Stakeholder Stout Session",
	"Barrel-Aged Roadmap Planning",
	"Lager Leadership Offsite",
	"End of Sprint Retrospecticle",
	"Draught Strategy Workshop",
	"Tap Room Town Hall",
	"Synergy Through Cider",
	"Pale Ale Performance Review",
	"Porter Portfolio Rebalancing",
	"Last Orders Standup",
	"Round Robin Resourcing",
	"Pint-Sized Deep Dive",
	"Bitter Lessons Learned",
	"Happy Hour Headcount Planning",
	"Beer Garden Blue Sky Thinking",
	"Closing Time Risk Assessment",
}

// Default returns a copy of DefaultNames.
func Default() []string {
	out := make([]string, len(DefaultNames))
	copy(out, DefaultNames)
	return out
}
