package domain

import "time"

// SourceRecord is a reading-list entry supplied by the bookmark exporter.
type SourceRecord struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	AddedAt time.Time `json:"added_at"`
}

// ScrapedContent is the readable text extracted for one successfully fetched record.
type ScrapedContent struct {
	Source SourceRecord `json:"source"`
	Text   string       `json:"text"`
	Length int          `json:"length"`
}

// SkippedSource records a record that produced no content and why.
type SkippedSource struct {
	Source SourceRecord `json:"source"`
	Reason string       `json:"reason"`
}

// AcquisitionResult is the outcome of fetching a batch of records.
type AcquisitionResult struct {
	Contents []ScrapedContent `json:"contents"`
	Skipped  []SkippedSource  `json:"skipped"`
}

// FailedRecords returns the records that have to be re-submitted to retry a batch.
func (r AcquisitionResult) FailedRecords() []SourceRecord {
	records := make([]SourceRecord, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		records = append(records, s.Source)
	}
	return records
}

// ProcessingSummary describes what a pipeline run did with its input.
type ProcessingSummary struct {
	TotalEntries        int             `json:"total_entries"`
	SuccessfullyScraped int             `json:"successfully_scraped"`
	FailedScrapes       int             `json:"failed_scrapes"`
	Skipped             []SkippedSource `json:"skipped"`
	ClustersCreated     int             `json:"clusters_created"`
}
