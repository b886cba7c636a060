package model

// Exporter receives the rows of every successful day log flush.
type Exporter interface {
	// Export takes the filtered rows of one day and forwards them.
	// day is the UTC date in YYYY-MM-DD form.
	Export(day string, rows []Row) error

	// Name identifies the exporter in logs and metrics.
	Name() string

	Close()
}
