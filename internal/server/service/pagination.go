package service

import (
	"math"

	"cloudprime/internal/server/database"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100

	// maxPage keeps (Page-1)*Limit within int for any accepted limit.
	maxPage = math.MaxInt / maxPageLimit
)

// PageRequest is a 1-based page selection as sent by clients.
type PageRequest struct {
	Page  int
	Limit int
}

// Pagination describes where a listing page sits in the full result.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Limit int   `json:"limit"`
}

// Paged is one page of a listing.
type Paged[T any] struct {
	Items      []T
	Pagination Pagination
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > maxPage {
		p.Page = maxPage
	}
	if p.Limit < 1 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p
}

func (p PageRequest) window() database.Page {
	return database.Page{Limit: p.Limit, Offset: (p.Page - 1) * p.Limit}
}

func newPaged[T any](items []T, total int64, p PageRequest) *Paged[T] {
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return &Paged[T]{
		Items: items,
		Pagination: Pagination{
			Total: total,
			Page:  p.Page,
			Pages: pages,
			Limit: p.Limit,
		},
	}
}

func mapSlice[S, T any](in []S, f func(S) T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
