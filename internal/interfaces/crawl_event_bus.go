package interfaces

// CrawlEventType identifies the kind of crawl-progress event published on
// the CrawlEventBus.
type CrawlEventType string

const (
	// CrawlEventPageCrawled is published once per page the crawler
	// retains (fetched, or reused via 304). Payload is a *CrawlPageEvent.
	CrawlEventPageCrawled CrawlEventType = "page_crawled"

	// CrawlEventPageSkipped is published once per URL the crawler visits
	// but does not retain (blocked, wrong content type, non-200
	// status, ...). Payload is a *CrawlSkipEvent.
	CrawlEventPageSkipped CrawlEventType = "page_skipped"

	// CrawlEventJobCompleted is published when a worker finishes a
	// CrawlJob successfully; the job's ID is in JobID and Payload is nil.
	// No event is published for a crawl that fails.
	CrawlEventJobCompleted CrawlEventType = "job_completed"
)

// CrawlEvent is one message published on the CrawlEventBus.
type CrawlEvent struct {
	Type    CrawlEventType
	JobID   int64
	Payload interface{}
}

// CrawlPageEvent is the payload of a CrawlEventPageCrawled event.
type CrawlPageEvent struct {
	URL   string
	Depth int
}

// CrawlSkipEvent is the payload of a CrawlEventPageSkipped event.
type CrawlSkipEvent struct {
	URL    string
	Reason string
}

// CrawlEventBus is a fire-and-forget in-process publish/subscribe bus.
// The crawl engine only ever publishes; consumers (progress UIs, log
// sinks) subscribe. A slow or absent subscriber must never block a
// publisher.
type CrawlEventBus interface {
	Publish(event CrawlEvent)
	Subscribe(jobID int64) (ch <-chan CrawlEvent, unsubscribe func())
}
