package models

// RunReport summarises one run of the price extraction job.
type RunReport struct {
	LinksTotal      int
	Processed       int
	SkippedComplete int
	LoadFailures    int
	EmptyDates      int
	PersistFailures int

	CurrencyFailures int
	RecordsWritten   int
	NullPrices       int
	ByCurrency       map[Currency]int
}

// NewRunReport returns a RunReport ready for counting.
func NewRunReport(linksTotal int) *RunReport {
	return &RunReport{
		LinksTotal: linksTotal,
		ByCurrency: make(map[Currency]int),
	}
}

// DiscoveryReport summarises one run of the link discovery job.
type DiscoveryReport struct {
	YearsScanned int
	YearsSkipped []int
	LinksByYear  map[int]int
	LinksTotal   int
	LinksUnique  int
}
