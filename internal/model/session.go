package model

import "time"

// CustomerKey pairs a customer name with the storage key the session may use for it.
type CustomerKey struct {
	Name       string `json:"name"`
	StorageKey string `json:"storage_key"`
}

// SessionRecord holds the tracked state of one client session. Identity fields
// are copied in at session start; the Open* pointers and activity fields change
// as the client works.
type SessionRecord struct {
	SessionID           string        `json:"session_id"`
	UserID              string        `json:"user_id,omitempty"`
	UserName            string        `json:"user_name,omitempty"`
	Roles               []string      `json:"roles"`
	CustomerStorageKeys []CustomerKey `json:"customer_storage_keys,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	OpenCustomerName    string        `json:"open_customer_name,omitempty"`
	OpenJobName         string        `json:"open_job_name,omitempty"`
	OpenVartreeName     string        `json:"open_vartree_name,omitempty"`
	OpenReportName      string        `json:"open_report_name,omitempty"`
	LastActivity        string        `json:"last_activity,omitempty"`
	LastActivityAt      *time.Time    `json:"last_activity_at,omitempty"`
	ActivityCount       int           `json:"activity_count"`
}

// FindStorageKey returns the storage key for the named customer.
func (s *SessionRecord) FindStorageKey(customerName string) (string, bool) {
	for _, ck := range s.CustomerStorageKeys {
		if ck.Name == customerName {
			return ck.StorageKey, ck.StorageKey != ""
		}
	}
	return "", false
}

// OpenStorageKey returns the storage key of the currently open customer, if any.
func (s *SessionRecord) OpenStorageKey() string {
	key, _ := s.FindStorageKey(s.OpenCustomerName)
	return key
}

// Clone returns a deep copy of the record.
func (s *SessionRecord) Clone() *SessionRecord {
	c := *s
	c.Roles = append([]string(nil), s.Roles...)
	c.CustomerStorageKeys = append([]CustomerKey(nil), s.CustomerStorageKeys...)
	if s.LastActivityAt != nil {
		t := *s.LastActivityAt
		c.LastActivityAt = &t
	}
	return &c
}
