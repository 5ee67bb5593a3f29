package dto

import "time"

type OpenInput struct {
	CallbackID      string
	DisableCoaching bool
}

// Response is the terminal answer to one open request.
type Response struct {
	CallbackID string `json:"callbackId"`
	SessionID  string `json:"sessionId"`
	OK         bool   `json:"ok"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	ScanID     string `json:"scanId,omitempty"`
	ModelURL   string `json:"modelUrl,omitempty"`
	DataURL    string `json:"dataUrl,omitempty"`
	Empty      bool   `json:"empty"`
}

type SupportedOutput struct {
	Supported bool   `json:"supported"`
	Device    string `json:"device"`
	Reason    string `json:"reason"`
}

type StatusOutput struct {
	Active        bool   `json:"active"`
	SessionID     string `json:"sessionId"`
	State         string `json:"state"`
	ResultPending bool   `json:"resultPending"`
	HasResult     bool   `json:"hasResult"`
}

type Counts struct {
	Walls    int `json:"walls"`
	Doors    int `json:"doors"`
	Windows  int `json:"windows"`
	Openings int `json:"openings"`
	Floors   int `json:"floors"`
	Objects  int `json:"objects"`
	Sections int `json:"sections"`
}

type ScanOutput struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	DataPath  string    `json:"dataPath"`
	ModelPath string    `json:"modelPath"`
	Counts    Counts    `json:"counts"`
	CreatedAt time.Time `json:"createdAt"`
}
