package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// SearchCitizens runs a free-text search over citizen records.
func (c *Client) SearchCitizens(ctx context.Context, query string) ([]entity.Citizen, error) {
	raw, err := c.send(ctx, request{
		method: http.MethodGet,
		path:   "citizens/search",
		query:  url.Values{"q": []string{query}},
		auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out []entity.Citizen
	return out, decode(raw, &out)
}

func (c *Client) GetCitizen(ctx context.Context, id string) (entity.Citizen, error) {
	var out entity.Citizen
	err := c.sendJSON(ctx, http.MethodGet, resource("citizens", id), nil, &out, true)
	return out, err
}

// CreateCitizen stores a new citizen. Nationality defaults to "Việt Nam".
func (c *Client) CreateCitizen(ctx context.Context, in entity.Citizen) (entity.Citizen, error) {
	if in.Nationality == "" {
		in.Nationality = "Việt Nam"
	}
	var out entity.Citizen
	err := c.sendJSON(ctx, http.MethodPost, "citizens/", in, &out, true)
	return out, err
}

func (c *Client) UpdateCitizen(ctx context.Context, id string, in entity.CitizenUpdate) (entity.Citizen, error) {
	var out entity.Citizen
	err := c.sendJSON(ctx, http.MethodPut, resource("citizens", id), in, &out, true)
	return out, err
}

func (c *Client) DeleteCitizen(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, resource("citizens", id), nil, nil, true)
}
