package types

// ErrorIdentity is rendered in place of an address when the identity could
// not be derived or the item's workflow crashed.
const ErrorIdentity = "Error"

// WorkItem is one secret key from the input file
type WorkItem struct {
	Index     int    // position in the input file
	SecretKey string // hex encoded private key, never logged
}

// Proxy is an egress proxy, host:port or user:pass@host:port
type Proxy struct {
	Address string
}

// Assignment pairs a work item with the proxy it uses for the whole run
type Assignment struct {
	Item  WorkItem
	Proxy Proxy
}

// Allocation is the KING amount reported for an identity, already scaled
// down from its 18-decimal base unit.
type Allocation struct {
	Identity string
	Amount   float64
}

// ClaimStatus is the network selection outcome for one item
type ClaimStatus int

const (
	ClaimNotAttempted ClaimStatus = iota
	ClaimSuccess
	ClaimFailure
)

// String returns the label used in logs and the report
func (s ClaimStatus) String() string {
	switch s {
	case ClaimSuccess:
		return "Success"
	case ClaimFailure:
		return "Failure"
	default:
		return "Not Selected"
	}
}

// ItemResult is the terminal outcome of one work item
type ItemResult struct {
	Index    int
	Identity string
	Amount   float64
	Status   ClaimStatus
}

// Placeholder returns the synthetic failure result for an index that
// crashed or never reported.
func Placeholder(index int) ItemResult {
	return ItemResult{
		Index:    index,
		Identity: ErrorIdentity,
		Amount:   0,
		Status:   ClaimFailure,
	}
}
