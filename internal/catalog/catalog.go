// Package catalog is the admin service's client for catalog-service.
package catalog

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/RassulYunussov/svcclient"
)

const ServiceName = "catalog-service"

// Result is the catalog-service success envelope.
type Result struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Service struct {
	client *svcclient.Client
}

func NewService(client *svcclient.Client) *Service {
	return &Service{client: client}
}

// each call is bound to the inbound request id and forwards the caller's Authorization header
func (s *Service) view(requestID, authHeader string) svcclient.View {
	return s.client.WithCorrelationID(requestID).WithCredential(authHeader)
}

func (s *Service) CreateBook(ctx context.Context, book json.RawMessage, requestID, authHeader string) (*Result, error) {
	resp, err := s.view(requestID, authHeader).Post(ctx, "/books", book)
	return decode(resp, err)
}

func (s *Service) ListBooks(ctx context.Context, query url.Values, requestID, authHeader string) (*Result, error) {
	resp, err := s.view(requestID, authHeader).Get(ctx, "/books", svcclient.WithQuery(query))
	return decode(resp, err)
}

func (s *Service) GetBook(ctx context.Context, id, requestID, authHeader string) (*Result, error) {
	resp, err := s.view(requestID, authHeader).Get(ctx, "/books/"+url.PathEscape(id), svcclient.WithResource("GET /books/{id}"))
	return decode(resp, err)
}

func (s *Service) UpdateBook(ctx context.Context, id string, update json.RawMessage, requestID, authHeader string) (*Result, error) {
	resp, err := s.view(requestID, authHeader).Put(ctx, "/books/"+url.PathEscape(id), update, svcclient.WithResource("PUT /books/{id}"))
	return decode(resp, err)
}

func (s *Service) DeleteBook(ctx context.Context, id, requestID, authHeader string) (*Result, error) {
	resp, err := s.view(requestID, authHeader).Delete(ctx, "/books/"+url.PathEscape(id), svcclient.WithResource("DELETE /books/{id}"))
	return decode(resp, err)
}

func decode(resp *svcclient.Response, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	var r Result
	if err := resp.Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
