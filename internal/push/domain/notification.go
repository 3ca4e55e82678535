package domain

import "fmt"

// Notification is the logical message handed to the dispatcher before
// any wire shape is chosen.
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	ImageURL string            `json:"image_url,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	// Reference document fields; used to synthesize a deep-link URL
	// when the data payload carries none.
	RefType string `json:"ref_type,omitempty"`
	RefName string `json:"ref_name,omitempty"`
}

// ResolveData returns the data payload with reference fields folded in.
// The original map is never mutated.
func (n *Notification) ResolveData(baseURL string) map[string]string {
	if n.Data == nil && n.RefType == "" && n.RefName == "" {
		return nil
	}
	data := make(map[string]string, len(n.Data)+3)
	for k, v := range n.Data {
		data[k] = v
	}
	if n.RefType != "" {
		data["ref_type"] = n.RefType
	}
	if n.RefName != "" {
		data["ref_name"] = n.RefName
	}
	if n.RefType != "" && n.RefName != "" {
		if _, ok := data["url"]; !ok {
			data["url"] = fmt.Sprintf("%s/app/%s/%s", baseURL, n.RefType, n.RefName)
		}
	}
	return data
}

// Failure describes one recipient that could not be reached.
type Failure struct {
	User     string `json:"user,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	Token    string `json:"token,omitempty"` // preview only
	Reason   string `json:"reason"`
}

// AggregateResult is the structured success/failure breakdown returned
// for every dispatch call. Partial delivery failure is reported here,
// never raised as an error.
type AggregateResult struct {
	Success  int       `json:"success"`
	Failed   int       `json:"failed"`
	Queued   bool      `json:"queued,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

// ConnectionStatus is the outcome of an administrative connectivity test.
type ConnectionStatus struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ProjectID string `json:"project_id,omitempty"`
	APIType   string `json:"api_type,omitempty"`
}
