package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"pqchat/internal/domain"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %s %s: %s", e.Method, e.Path, e.Status)
}

// HTTP is the directory and history client.
type HTTP struct {
	Base  string
	Token string // sent as a bearer token when non-empty
	HTTP  *http.Client
}

// NewHTTP returns a client for base. A nil client selects http.DefaultClient.
func NewHTTP(base, token string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: base, Token: token, HTTP: client}
}

// PublishKeys uploads the public keys of user.
func (c *HTTP) PublishKeys(ctx context.Context, user domain.UserID, doc domain.KeysDocument) error {
	if err := c.post(ctx, peerPath(user, "keys"), doc, nil); err != nil {
		return domain.Wrap("relay.publish", user, domain.ErrDirectoryFetch, err)
	}
	return nil
}

// FetchPeerKeys returns the published keys of peer. A 404 wraps ErrKeyNotFound.
func (c *HTTP) FetchPeerKeys(ctx context.Context, peer domain.UserID) (domain.KeysDocument, error) {
	var out domain.KeysDocument
	if err := c.getJSON(ctx, peerPath(peer, "keys"), &out); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return domain.KeysDocument{}, domain.Wrap("relay.keys", peer, domain.ErrKeyNotFound, err)
		}
		return domain.KeysDocument{}, domain.Wrap("relay.keys", peer, domain.ErrDirectoryFetch, err)
	}
	return out, nil
}

// FetchPresence returns whether peer is connected.
func (c *HTTP) FetchPresence(ctx context.Context, peer domain.UserID) (domain.PresenceDocument, error) {
	var out domain.PresenceDocument
	if err := c.getJSON(ctx, peerPath(peer, "status"), &out); err != nil {
		return domain.PresenceDocument{}, domain.Wrap("relay.status", peer, domain.ErrDirectoryFetch, err)
	}
	return out, nil
}

// FetchMessages returns the server-held history between the caller and peer.
func (c *HTTP) FetchMessages(ctx context.Context, peer domain.UserID) ([]domain.RemoteMessage, error) {
	var out []domain.RemoteMessage
	if err := c.getJSON(ctx, "/messages/"+url.PathEscape(peer.String()), &out); err != nil {
		return nil, domain.Wrap("relay.messages", peer, domain.ErrDirectoryFetch, err)
	}
	return out, nil
}

func peerPath(id domain.UserID, leaf string) string {
	return "/peer/" + url.PathEscape(id.String()) + "/" + leaf
}

func (c *HTTP) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTP) do(req *http.Request, out any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var (
	_ domain.DirectoryClient = (*HTTP)(nil)
	_ domain.HistoryClient   = (*HTTP)(nil)
)
