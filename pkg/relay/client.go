package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/types"
)

// DefaultFetchHeaderTimeout is the per-call timeout the Boost multiplexer's
// fan-out applies when asking a single relay for a header.
const DefaultFetchHeaderTimeout = 1 * time.Second

// Client is the thin remote-call surface for one relay: the five
// Relay-API operations both the Boost multiplexer and the auctioneer
// depend on. One http.Client per remote, addressed by Endpoint.
type Client struct {
	Endpoint   *Endpoint
	httpClient *http.Client
	log        logrus.FieldLogger
}

// NewClient creates a relay client for a single endpoint.
func NewClient(endpoint *Endpoint, log logrus.FieldLogger) *Client {
	return &Client{
		Endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.WithField("relay", endpoint.String()),
	}
}

func (c *Client) url(path string) string {
	u := *c.Endpoint.URL

	if path, query, ok := strings.Cut(path, "?"); ok {
		u.Path = path
		u.RawQuery = query
	} else {
		u.Path = path
		u.RawQuery = ""
	}

	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, timeout time.Duration) (*http.Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// RegisterValidators posts a batch of signed validator registrations.
// Success is any 2xx response with an empty body.
func (c *Client) RegisterValidators(ctx context.Context, batch []*types.SignedValidatorRegistration) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal registrations: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/relay/v1/builder/validators", payload, 0)
	if err != nil {
		return fmt.Errorf("register_validators request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{RelayURL: c.Endpoint.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}

// FetchHeader asks this relay for its best bid for (slot, parentHash,
// pubkey). A 204 response maps to ErrNoBidPrepared, not an error proper.
func (c *Client) FetchHeader(
	ctx context.Context,
	slot phase0.Slot,
	parentHash phase0.Hash32,
	pubkey phase0.BLSPubKey,
	timeout time.Duration,
) (*types.SignedBuilderBid, error) {
	path := fmt.Sprintf(
		"/eth/v1/builder/header/%d/0x%s/0x%s",
		slot, hex.EncodeToString(parentHash[:]), hex.EncodeToString(pubkey[:]),
	)

	resp, err := c.do(ctx, http.MethodGet, path, nil, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch_header request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, ErrNoBidPrepared
	}

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{RelayURL: c.Endpoint.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var versioned types.VersionedValue[*types.SignedBuilderBid]
	if err := json.NewDecoder(resp.Body).Decode(&versioned); err != nil {
		return nil, fmt.Errorf("failed to decode fetch_header response: %w", err)
	}

	return versioned.Data, nil
}

// OpenBid posts a signed blinded block and returns the full execution
// payload the relay is willing to release for it.
func (c *Client) OpenBid(ctx context.Context, signedBlock *types.SignedBlindedBeaconBlock) (*types.ExecutionPayload, error) {
	payload, err := json.Marshal(signedBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal blinded block: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/eth/v1/builder/blinded_blocks", payload, 0)
	if err != nil {
		return nil, fmt.Errorf("open_bid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{RelayURL: c.Endpoint.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var versioned types.VersionedValue[*types.ExecutionPayload]
	if err := json.NewDecoder(resp.Body).Decode(&versioned); err != nil {
		return nil, fmt.Errorf("failed to decode open_bid response: %w", err)
	}

	return versioned.Data, nil
}

// GetProposalSchedule fetches the relay's view of which registered
// validators are scheduled to propose over the current and next epoch.
func (c *Client) GetProposalSchedule(ctx context.Context) ([]*types.ProposerScheduleEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/relay/v1/builder/validators", nil, 0)
	if err != nil {
		return nil, fmt.Errorf("get_proposal_schedule request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{RelayURL: c.Endpoint.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var entries []*types.ProposerScheduleEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode proposal schedule: %w", err)
	}

	return entries, nil
}

// SubmitBid posts a signed bid submission (builder -> relay). cancellations
// toggles the Relay API's "cancellations" query parameter, which lets a
// builder's later, higher submission pre-empt an earlier one still in
// flight to the same relay.
func (c *Client) SubmitBid(ctx context.Context, submission *types.SignedBidSubmission, cancellations bool) error {
	payload, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("failed to marshal bid submission: %w", err)
	}

	path := "/relay/v1/builder/blocks?cancellations=false"
	if cancellations {
		path = "/relay/v1/builder/blocks?cancellations=true"
	}

	resp, err := c.do(ctx, http.MethodPost, path, payload, 0)
	if err != nil {
		return fmt.Errorf("submit_bid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{RelayURL: c.Endpoint.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}
