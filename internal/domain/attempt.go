package domain

// VerifyStatus tags the verification outcome stored on an event.
type VerifyStatus string

const (
	VerifyOK         VerifyStatus = "ok"
	VerifyUnverified VerifyStatus = "unverified"
	VerifySkipped    VerifyStatus = "skipped"
	VerifyMismatch   VerifyStatus = "mismatch"
	VerifyError      VerifyStatus = "error"
	VerifyNone       VerifyStatus = ""
)

// Persistable reports whether the status is recorded after a successful fetch.
func (s VerifyStatus) Persistable() bool {
	return s == VerifyOK || s == VerifyUnverified || s == VerifySkipped
}

// VerifyResult is the outcome of one verification of fetched text.
type VerifyResult struct {
	OK          bool
	Status      VerifyStatus
	Match       bool
	Verified    bool
	Confidence  float64
	Reason      string
	PageSummary string
	Tokens      int
	Err         error
}

// FetchMethod names the transport that produced a page.
type FetchMethod string

const (
	MethodFetch  FetchMethod = "fetch"
	MethodBrowse FetchMethod = "browse"
)

// Attempt is the result of fetching, extracting and verifying one URL.
// A nil *Attempt means no usable text was found.
type Attempt struct {
	OK       bool
	Mismatch bool
	Method   FetchMethod
	HTML     string
	Text     string
	Verify   VerifyResult
}
