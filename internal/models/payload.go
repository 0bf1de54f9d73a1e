package models

import (
	"encoding/json"
)

// JobPayload is the schema-less job payload column, decoded into known
// fields with unknown keys preserved for forward compatibility. A worker
// running an older binary must be able to carry a newer payload through
// a retry without dropping options it does not understand.
type JobPayload struct {
	StorageKey  string `json:"storage_key"`
	FileName    string `json:"file_name,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Vendor      string `json:"vendor,omitempty"`
	Model       string `json:"model,omitempty"`
	DocType     string `json:"doc_type,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`

	// Retry bookkeeping, sufficient to resume or diagnose without
	// external state.
	Attempt    int    `json:"attempt,omitempty"`
	SourceHash string `json:"source_hash,omitempty"`
	LastError  string `json:"last_error,omitempty"`

	// Unrecognized keys, carried verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownPayloadKeys = map[string]bool{
	"storage_key": true, "file_name": true, "mime_type": true,
	"title": true, "vendor": true, "model": true, "doc_type": true,
	"published_at": true, "attempt": true, "source_hash": true,
	"last_error": true,
}

func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type alias JobPayload
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if knownPayloadKeys[k] {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	*p = JobPayload(a)
	return nil
}

func (p JobPayload) MarshalJSON() ([]byte, error) {
	type alias JobPayload
	base, err := json.Marshal(alias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
