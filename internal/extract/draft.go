// Package extract turns free-text expense messages into draft records.
package extract

// Draft is a best-effort structured reading of one input message. Every
// extractor (heuristic or AI) produces this shape; a nil Amount means no
// amount could be found and the caller must treat extraction as failed.
//
// Time is a raw string, either a full "YYYY-M-D HH:MM" or a bare "HH:MM";
// resolving it against a zone happens later in timeres.Compose.
type Draft struct {
	Amount   *float64 `json:"amount"`
	Time     string   `json:"time"`
	Category string   `json:"category"`
	Payee    string   `json:"payee"`
	Note     string   `json:"note"`
}
