package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ServiceDetails points at a platform endpoint and the application to run there.
type ServiceDetails struct {
	Endpoint    string `json:"endpoint" validate:"required,url"`
	Application string `json:"application" validate:"required"`
}

// Value stores the details as a single JSON document.
func (s ServiceDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *ServiceDetails) Scan(src any) error {
	return scanJSON(src, s)
}

// Params is a free-form parameter document stored as JSON.
type Params map[string]any

func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Params) Scan(src any) error {
	return scanJSON(src, p)
}

// With returns a copy of p with key set to value.
func (p Params) With(key string, value any) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = value
	return out
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
