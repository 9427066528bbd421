package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/heru-iot/heru/internal/httpkit"
)

// DefaultPinataEndpoint is Pinata's JSON pinning API.
const DefaultPinataEndpoint = "https://api.pinata.cloud/pinning/pinJSONToIPFS"

// PinataClient pins JSON documents to IPFS through Pinata's API.
type PinataClient struct {
	// Endpoint is overridable for tests; defaults to Pinata's API.
	Endpoint string

	apiKey    string
	apiSecret string
	http      *http.Client
}

// NewPinataClient creates a client authenticated with the given API
// key pair.
func NewPinataClient(apiKey, apiSecret string) *PinataClient {
	return &PinataClient{
		Endpoint:  DefaultPinataEndpoint,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
	}
}

// Pin uploads v as JSON and returns the resulting IPFS CID.
func (p *PinataClient) Pin(ctx context.Context, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal pin payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("pinata_api_key", p.apiKey)
	req.Header.Set("pinata_secret_api_key", p.apiSecret)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, 512)
		return "", fmt.Errorf("pinata returned %s: %s", resp.Status, msg)
	}

	var out struct {
		IpfsHash string `json:"IpfsHash"`
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	httpkit.DrainAndClose(resp.Body, 1024)
	if err != nil {
		return "", fmt.Errorf("decode pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinata response missing IpfsHash")
	}
	return out.IpfsHash, nil
}
