package model

// ViolationEntry is one record of the append-only violation log.
type ViolationEntry struct {
	Timestamp string `json:"timestamp"`
	Activity  string `json:"activity"`
	URL       string `json:"url"`
}

// ViolationStats summarises the violation log for review.
type ViolationStats struct {
	TotalAttempts  int  `json:"totalAttempts"`
	RecentAttempts int  `json:"recentAttempts"`
	HasCheated     bool `json:"hasCheated"`
}

// ClearViolationsRequest is the payload a reviewer sends to clear the log.
type ClearViolationsRequest struct {
	Passphrase string `json:"passphrase" binding:"required,min=6,max=128"`
}
