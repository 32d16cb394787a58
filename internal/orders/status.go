package orders

import "strings"

// Broker status families, matched after lowercasing.
var (
	submittedStatuses = map[string]bool{"submitted": true, "presubmitted": true, "pendingsubmit": true}
	cancelledStatuses = map[string]bool{"cancelled": true, "apicancelled": true, "inactive": true}
	rejectedStatuses  = map[string]bool{"rejected": true}
)

// NormalizeStatus maps a raw broker status string plus the observed filled
// quantity to the local order status. Unknown non-empty statuses normalize
// to submitted: an in-flight order should never look scarier than it is.
// An empty status means the broker has told us nothing yet.
func NormalizeStatus(brokerStatus string, filledQty float64) string {
	value := strings.ToLower(strings.TrimSpace(brokerStatus))
	switch {
	case value == "filled":
		return StatusFilled
	case rejectedStatuses[value]:
		return StatusRejected
	case cancelledStatuses[value]:
		return StatusCancelled
	case submittedStatuses[value]:
		if filledQty > 0 {
			return StatusPartiallyFilled
		}
		return StatusSubmitted
	case value != "":
		return StatusSubmitted
	}
	return StatusQueued
}
