package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// PushNotifier tries the WS registry first and falls back to posting the
// signal to a push-provider HTTP endpoint (FCM-style). Both paths are
// best-effort: a delivery failure is not an application error.
type PushNotifier struct {
	WS       *WSRegistry
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewPushNotifier(ws *WSRegistry, endpoint, key string) *PushNotifier {
	return &PushNotifier{
		WS:       ws,
		Endpoint: endpoint,
		Key:      key,
		Client:   &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *PushNotifier) Notify(userID string, sig Signal) error {
	if p.WS != nil {
		if err := p.WS.Notify(userID, sig); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return nil
	}
	body := map[string]any{
		"message": map[string]any{
			"token": userID,
			"data":  sig,
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
