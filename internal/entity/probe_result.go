package entity

// ProbeResult is what a prober reports for one candidate.
type ProbeResult struct {
	Candidate      string            `json:"candidate"`
	Exists         bool              `json:"exists"`
	DisplayName    string            `json:"display_name,omitempty"`
	Classification Classification    `json:"classification"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}
